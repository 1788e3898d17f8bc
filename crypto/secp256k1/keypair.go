// Package secp256k1 wraps btcec/v2 key types with the (de)serialisation and
// JSON marshalling swapd needs to carry secp256k1 points inside wire
// messages (§4.C) and persisted state (§4.G).
package secp256k1

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/fxamacker/cbor/v2"
)

// PrivateKey is a scalar on the secp256k1 curve.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// NewPrivateKey generates a new random secp256k1 private key.
func NewPrivateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: k}, nil
}

// PrivateKeyFromScalar builds a PrivateKey from a 32-byte big-endian scalar.
func PrivateKeyFromScalar(b [32]byte) *PrivateKey {
	k, _ := btcec.PrivKeyFromBytes(b[:])
	return &PrivateKey{key: k}
}

// Public returns the public key corresponding to k.
func (k *PrivateKey) Public() *PublicKey {
	return &PublicKey{key: k.key.PubKey()}
}

// Scalar returns the private key's 32-byte big-endian scalar encoding.
func (k *PrivateKey) Scalar() [32]byte {
	var b [32]byte
	copy(b[:], k.key.Serialize())
	return b
}

// BTCEC exposes the underlying btcec private key for signing operations.
func (k *PrivateKey) BTCEC() *btcec.PrivateKey {
	return k.key
}

// PublicKey is a point on the secp256k1 curve.
type PublicKey struct {
	key *btcec.PublicKey
}

// NewPublicKeyFromBTCEC wraps an existing btcec public key.
func NewPublicKeyFromBTCEC(k *btcec.PublicKey) *PublicKey {
	return &PublicKey{key: k}
}

// PublicKeyFromCompressed decodes a 33-byte compressed SEC1 public key.
func PublicKeyFromCompressed(b [33]byte) (*PublicKey, error) {
	k, err := btcec.ParsePubKey(b[:])
	if err != nil {
		return nil, fmt.Errorf("invalid compressed secp256k1 public key: %w", err)
	}
	return &PublicKey{key: k}, nil
}

// BTCEC exposes the underlying btcec public key.
func (k *PublicKey) BTCEC() *btcec.PublicKey {
	return k.key
}

// Compressed returns the 33-byte compressed SEC1 encoding.
func (k *PublicKey) Compressed() [33]byte {
	var b [33]byte
	copy(b[:], k.key.SerializeCompressed())
	return b
}

// String returns the hex-encoded compressed public key.
func (k *PublicKey) String() string {
	b := k.Compressed()
	return hex.EncodeToString(b[:])
}

// Add returns k + other, the public key corresponding to the sum of the two
// underlying scalars. Used to combine Alice's and Bob's auxiliary points
// (S_A + S_B) without either party learning the other's secret (§3).
func (k *PublicKey) Add(other *PublicKey) *PublicKey {
	var jk, jo, sum btcec.JacobianPoint
	k.key.AsJacobian(&jk)
	other.key.AsJacobian(&jo)
	btcec.AddNonConst(&jk, &jo, &sum)
	sum.ToAffine()
	return &PublicKey{key: btcec.NewPublicKey(&sum.X, &sum.Y)}
}

// MarshalJSON implements json.Marshaler.
func (k *PublicKey) MarshalJSON() ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, errors.New("cannot marshal nil public key")
	}
	b := k.Compressed()
	return json.Marshal(hex.EncodeToString(b[:]))
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid secp256k1 public key hex: %w", err)
	}

	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return fmt.Errorf("invalid secp256k1 public key: %w", err)
	}

	k.key = pub
	return nil
}

// MarshalCBOR implements cbor.Marshaler, encoding the compressed point as a
// CBOR byte string. Used when a PublicKey is embedded in a net/message wire
// struct (§4.C).
func (k *PublicKey) MarshalCBOR() ([]byte, error) {
	if k == nil || k.key == nil {
		return nil, errors.New("cannot marshal nil public key")
	}
	b := k.Compressed()
	return cbor.Marshal(b[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (k *PublicKey) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}

	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return fmt.Errorf("invalid secp256k1 public key: %w", err)
	}

	k.key = pub
	return nil
}

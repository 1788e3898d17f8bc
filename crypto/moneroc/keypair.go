// Package moneroc implements the Monero-curve half of the key split
// described in spec.md §3: each party holds a spend-key half s_i and a
// view-key half v_i on the Ed25519 basis that Monero uses, with
// s = s_A + s_B and v = v_A + v_B never both known to one party until a
// redeem or refund transaction publishes on Bitcoin (§3 invariant 1, §8
// invariant 2).
package moneroc

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/fxamacker/cbor/v2"
)

// PrivateSpendKey is a scalar mod l, one half of the shared Monero spend key.
type PrivateSpendKey struct {
	scalar *edwards25519.Scalar
}

// PrivateViewKey is a scalar mod l, one half of the shared Monero view key.
type PrivateViewKey struct {
	scalar *edwards25519.Scalar
}

// PublicSpendKey is a point on the Ed25519 basis.
type PublicSpendKey struct {
	point *edwards25519.Point
}

// PublicViewKey is a point on the Ed25519 basis.
type PublicViewKey struct {
	point *edwards25519.Point
}

// NewPrivateSpendKeyFromScalar reduces b mod l and wraps it as a PrivateSpendKey.
func NewPrivateSpendKeyFromScalar(b [32]byte) (*PrivateSpendKey, error) {
	s, err := scalarFromWideBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid spend key scalar: %w", err)
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// NewPrivateViewKeyFromScalar reduces b mod l and wraps it as a PrivateViewKey.
func NewPrivateViewKeyFromScalar(b [32]byte) (*PrivateViewKey, error) {
	s, err := scalarFromWideBytes(b)
	if err != nil {
		return nil, fmt.Errorf("invalid view key scalar: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// scalarFromWideBytes hashes b with SHA-512 and reduces the 64-byte digest
// mod l, the standard way Monero derives a scalar from arbitrary entropy.
func scalarFromWideBytes(b [32]byte) (*edwards25519.Scalar, error) {
	digest := sha512.Sum512(b[:])
	return edwards25519.NewScalar().SetUniformBytes(digest[:])
}

// NewPrivateSpendKeyFromCanonicalScalar wraps b directly as a PrivateSpendKey
// without hashing it first. Used when b must keep its exact integer value
// rather than being re-derived — in particular, the DLEQ secret generated
// alongside a party's spend-key half (§3, §4.A) is the same bits on both
// curves, so the Monero side cannot run it through SHA-512 first the way
// NewPrivateSpendKeyFromScalar does for ordinary key generation.
func NewPrivateSpendKeyFromCanonicalScalar(b [32]byte) (*PrivateSpendKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("invalid canonical spend key scalar: %w", err)
	}
	return &PrivateSpendKey{scalar: s}, nil
}

// NewPrivateViewKeyFromCanonicalScalar wraps b directly as a PrivateViewKey
// without hashing it first, the view-key counterpart of
// NewPrivateSpendKeyFromCanonicalScalar — used to reconstruct a party's own
// view key half from its persisted scalar on resume, rather than rederiving
// it from a seed.
func NewPrivateViewKeyFromCanonicalScalar(b [32]byte) (*PrivateViewKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("invalid canonical view key scalar: %w", err)
	}
	return &PrivateViewKey{scalar: s}, nil
}

// Public returns the point k*B, B the Ed25519 base point.
func (k *PrivateSpendKey) Public() *PublicSpendKey {
	p := new(edwards25519.Point).ScalarBaseMult(k.scalar)
	return &PublicSpendKey{point: p}
}

// Public returns the point k*B.
func (k *PrivateViewKey) Public() *PublicViewKey {
	p := new(edwards25519.Point).ScalarBaseMult(k.scalar)
	return &PublicViewKey{point: p}
}

// Bytes returns the 32-byte little-endian scalar encoding.
func (k *PrivateSpendKey) Bytes() [32]byte {
	var b [32]byte
	copy(b[:], k.scalar.Bytes())
	return b
}

// Bytes returns the 32-byte little-endian scalar encoding.
func (k *PrivateViewKey) Bytes() [32]byte {
	var b [32]byte
	copy(b[:], k.scalar.Bytes())
	return b
}

// Add returns k + other mod l, the combined private spend key
// s = s_A + s_B (§3). Only ever computed after a redeem or refund
// transaction has revealed the counterparty's half (§8 invariant 2).
func (k *PrivateSpendKey) Add(other *PrivateSpendKey) *PrivateSpendKey {
	sum := new(edwards25519.Scalar).Add(k.scalar, other.scalar)
	return &PrivateSpendKey{scalar: sum}
}

// Add returns k + other mod l, the combined private view key v = v_A + v_B.
func (k *PrivateViewKey) Add(other *PrivateViewKey) *PrivateViewKey {
	sum := new(edwards25519.Scalar).Add(k.scalar, other.scalar)
	return &PrivateViewKey{scalar: sum}
}

// Bytes returns the 32-byte compressed point encoding.
func (k *PublicSpendKey) Bytes() [32]byte {
	var b [32]byte
	copy(b[:], k.point.Bytes())
	return b
}

// Bytes returns the 32-byte compressed point encoding.
func (k *PublicViewKey) Bytes() [32]byte {
	var b [32]byte
	copy(b[:], k.point.Bytes())
	return b
}

// Add returns the point sum k + other, i.e. S_A + S_B.
func (k *PublicSpendKey) Add(other *PublicSpendKey) *PublicSpendKey {
	sum := new(edwards25519.Point).Add(k.point, other.point)
	return &PublicSpendKey{point: sum}
}

// Add returns the point sum k + other, i.e. V_A + V_B.
func (k *PublicViewKey) Add(other *PublicViewKey) *PublicViewKey {
	sum := new(edwards25519.Point).Add(k.point, other.point)
	return &PublicViewKey{point: sum}
}

// PublicSpendKeyFromBytes decodes a 32-byte compressed Ed25519 point.
func PublicSpendKeyFromBytes(b [32]byte) (*PublicSpendKey, error) {
	p, err := new(edwards25519.Point).SetBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("invalid spend public key: %w", err)
	}
	return &PublicSpendKey{point: p}, nil
}

// PublicViewKeyFromBytes decodes a 32-byte compressed Ed25519 point.
func PublicViewKeyFromBytes(b [32]byte) (*PublicViewKey, error) {
	p, err := new(edwards25519.Point).SetBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("invalid view public key: %w", err)
	}
	return &PublicViewKey{point: p}, nil
}

// PrivateKeyPair is one party's (spend, view) private key half.
type PrivateKeyPair struct {
	sk *PrivateSpendKey
	vk *PrivateViewKey
}

// NewPrivateKeyPair wraps the given spend and view key halves.
func NewPrivateKeyPair(sk *PrivateSpendKey, vk *PrivateViewKey) *PrivateKeyPair {
	return &PrivateKeyPair{sk: sk, vk: vk}
}

// SpendKey returns the private spend key half.
func (p *PrivateKeyPair) SpendKey() *PrivateSpendKey { return p.sk }

// ViewKey returns the private view key half.
func (p *PrivateKeyPair) ViewKey() *PrivateViewKey { return p.vk }

// PublicKeyPair returns the corresponding public key halves.
func (p *PrivateKeyPair) PublicKeyPair() *PublicKeyPair {
	return &PublicKeyPair{sk: p.sk.Public(), vk: p.vk.Public()}
}

// Address derives the standard address for this key pair half. This is only
// meaningful once summed with the counterparty's half (see SumSpendAndViewKeys);
// a lone half does not correspond to a spendable Monero account.
func (p *PrivateKeyPair) Address(env Network) Address {
	return NewAddress(p.sk.Public(), p.vk.Public(), env)
}

// PublicKeyPair is one party's (spend, view) public key half.
type PublicKeyPair struct {
	sk *PublicSpendKey
	vk *PublicViewKey
}

// NewPublicKeyPair wraps the given public spend and view keys.
func NewPublicKeyPair(sk *PublicSpendKey, vk *PublicViewKey) *PublicKeyPair {
	return &PublicKeyPair{sk: sk, vk: vk}
}

// SpendKey returns the public spend key.
func (p *PublicKeyPair) SpendKey() *PublicSpendKey { return p.sk }

// ViewKey returns the public view key.
func (p *PublicKeyPair) ViewKey() *PublicViewKey { return p.vk }

// SumSpendAndViewKeys combines Alice's and Bob's public key halves into the
// shared (S, V) that XMR is locked to: S = S_A + S_B, V = V_A + V_B.
func SumSpendAndViewKeys(a, b *PublicKeyPair) *PublicKeyPair {
	return &PublicKeyPair{
		sk: a.sk.Add(b.sk),
		vk: a.vk.Add(b.vk),
	}
}

// Network selects the address prefix byte.
type Network byte

const (
	// Mainnet is the production Monero network address prefix.
	Mainnet Network = 18
	// Stagenet is Monero's long-lived test network address prefix.
	Stagenet Network = 24
)

// Address is a base58-encoded standard Monero address carrying a
// Keccak-256 checksum.
type Address string

// NewAddress derives a standard address from a public spend/view key pair.
func NewAddress(sk *PublicSpendKey, vk *PublicViewKey, net Network) Address {
	skb := sk.Bytes()
	vkb := vk.Bytes()

	payload := make([]byte, 0, 1+32+32)
	payload = append(payload, byte(net))
	payload = append(payload, skb[:]...)
	payload = append(payload, vkb[:]...)

	checksum := keccak256Checksum(payload)
	payload = append(payload, checksum[:4]...)

	return Address(base58MoneroEncode(payload))
}

// MarshalJSON implements json.Marshaler for Address, encoding the raw string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// MarshalJSON implements json.Marshaler.
func (k *PublicSpendKey) MarshalJSON() ([]byte, error) {
	if k == nil {
		return nil, errors.New("cannot marshal nil public spend key")
	}
	b := k.Bytes()
	return json.Marshal(hex.EncodeToString(b[:]))
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *PublicSpendKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("invalid public spend key hex")
	}
	var arr [32]byte
	copy(arr[:], b)
	parsed, err := PublicSpendKeyFromBytes(arr)
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (k *PrivateViewKey) MarshalJSON() ([]byte, error) {
	if k == nil {
		return nil, errors.New("cannot marshal nil private view key")
	}
	b := k.Bytes()
	return json.Marshal(hex.EncodeToString(b[:]))
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *PrivateViewKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("invalid private view key hex")
	}
	scalar, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return fmt.Errorf("invalid private view key scalar: %w", err)
	}
	k.scalar = scalar
	return nil
}

// String implements fmt.Stringer for PublicSpendKey.
func (k *PublicSpendKey) String() string {
	b := k.Bytes()
	return hex.EncodeToString(b[:])
}

// String implements fmt.Stringer for PrivateViewKey.
func (k *PrivateViewKey) String() string {
	b := k.Bytes()
	return hex.EncodeToString(b[:])
}

// MarshalCBOR implements cbor.Marshaler, used when a PublicSpendKey is
// embedded in a net/message wire struct (§4.C).
func (k *PublicSpendKey) MarshalCBOR() ([]byte, error) {
	if k == nil {
		return nil, errors.New("cannot marshal nil public spend key")
	}
	b := k.Bytes()
	return cbor.Marshal(b[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (k *PublicSpendKey) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("invalid public spend key length %d", len(b))
	}
	var arr [32]byte
	copy(arr[:], b)
	parsed, err := PublicSpendKeyFromBytes(arr)
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// MarshalCBOR implements cbor.Marshaler, used when a PrivateViewKey is
// embedded in a net/message wire struct. View key halves are sent in the
// clear (§4.A): only the spend key needs to stay secret.
func (k *PrivateViewKey) MarshalCBOR() ([]byte, error) {
	if k == nil {
		return nil, errors.New("cannot marshal nil private view key")
	}
	b := k.Bytes()
	return cbor.Marshal(b[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (k *PrivateViewKey) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("invalid private view key length %d", len(b))
	}
	scalar, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		return fmt.Errorf("invalid private view key scalar: %w", err)
	}
	k.scalar = scalar
	return nil
}

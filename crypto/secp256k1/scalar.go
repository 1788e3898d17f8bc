package secp256k1

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/fxamacker/cbor/v2"
)

// Scalar is an element of Z_N, N the secp256k1 group order.
type Scalar struct {
	s btcec.ModNScalar
}

// RandomScalar returns a uniformly random non-zero element of Z_N.
func RandomScalar() (*Scalar, error) {
	for {
		var b [32]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		sc := ScalarFromBytes(b)
		if !sc.IsZero() {
			return sc, nil
		}
	}
}

// ScalarFromBytes reduces b mod N.
func ScalarFromBytes(b [32]byte) *Scalar {
	var s btcec.ModNScalar
	s.SetByteSlice(b[:])
	return &Scalar{s: s}
}

// ScalarFromWideBytes turns a (possibly wide) digest into a scalar by
// keeping only its last 32 bytes and reducing those mod N; any bytes before
// the last 32 are discarded, so for longer inputs the result is not b mod N.
func ScalarFromWideBytes(b []byte) *Scalar {
	var s btcec.ModNScalar
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	s.SetByteSlice(b)
	return &Scalar{s: s}
}

// Bytes returns the 32-byte big-endian encoding of the scalar.
func (s *Scalar) Bytes() [32]byte {
	return s.s.Bytes()
}

// IsZero reports whether s == 0.
func (s *Scalar) IsZero() bool {
	return s.s.IsZero()
}

// Add returns s + other mod N.
func (s *Scalar) Add(other *Scalar) *Scalar {
	var r btcec.ModNScalar
	r.Add2(&s.s, &other.s)
	return &Scalar{s: r}
}

// Mul returns s * other mod N.
func (s *Scalar) Mul(other *Scalar) *Scalar {
	var r btcec.ModNScalar
	r.Mul2(&s.s, &other.s)
	return &Scalar{s: r}
}

// Negate returns -s mod N.
func (s *Scalar) Negate() *Scalar {
	r := s.s
	r.Negate()
	return &Scalar{s: r}
}

// ToPrivateKey treats the scalar as a private key scalar and returns the
// corresponding keypair.
func (s *Scalar) ToPrivateKey() *PrivateKey {
	b := s.Bytes()
	return PrivateKeyFromScalar(b)
}

// MarshalCBOR implements cbor.Marshaler, used when a Scalar is embedded in
// an adaptor.Signature/EncryptedSignature carried over the wire (§4.C).
func (s *Scalar) MarshalCBOR() ([]byte, error) {
	b := s.Bytes()
	return cbor.Marshal(b[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (s *Scalar) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	var arr [32]byte
	copy(arr[:], b)
	*s = *ScalarFromBytes(arr)
	return nil
}

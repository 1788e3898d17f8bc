package dleq

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"

	"filippo.io/edwards25519"
)

// edScalar is an element of Z_l, l the Ed25519/Monero group order.
type edScalar struct {
	s *edwards25519.Scalar
}

func edRandomScalar() (*edScalar, error) {
	var seed [64]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, err
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	if err != nil {
		return nil, err
	}
	return &edScalar{s: s}, nil
}

// edScalarFromChallenge reduces a 32-byte Fiat-Shamir challenge mod l by
// zero-extending it to the 64-byte width SetUniformBytes requires for a
// correct wide reduction; an all-zero upper half is a valid uniform input.
func edScalarFromChallenge(b [32]byte) *edScalar {
	var wide [64]byte
	copy(wide[:32], b[:])
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic("dleq: SetUniformBytes on a 64-byte buffer cannot fail")
	}
	return &edScalar{s: s}
}

func edScalarFromCanonicalBytes(b [32]byte) (*edScalar, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return nil, err
	}
	return &edScalar{s: s}, nil
}

func (s *edScalar) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], s.s.Bytes())
	return out
}

func (s *edScalar) Add(other *edScalar) *edScalar {
	return &edScalar{s: new(edwards25519.Scalar).Add(s.s, other.s)}
}

func (s *edScalar) Negate() *edScalar {
	return &edScalar{s: new(edwards25519.Scalar).Negate(s.s)}
}

func (s *edScalar) Mul(other *edScalar) *edScalar {
	return &edScalar{s: new(edwards25519.Scalar).Multiply(s.s, other.s)}
}

// bit returns bit i (0 = least significant) of the scalar's little-endian
// encoding.
func (s *edScalar) bit(i int) byte {
	b := s.Bytes()
	return (b[i/8] >> uint(i%8)) & 1
}

// edPoint is a point on the Ed25519 curve used as a Pedersen commitment basis.
type edPoint struct {
	p *edwards25519.Point
}

func edGenerator() *edPoint {
	return &edPoint{p: edwards25519.NewGeneratorPoint()}
}

func edIdentity() *edPoint {
	return &edPoint{p: edwards25519.NewIdentityPoint()}
}

// edHashToPoint derives a point with unknown discrete log relative to the
// generator by rejection sampling: hash domain||counter and try to decode
// it as a compressed Edwards point, which succeeds for roughly half of all
// inputs.
func edHashToPoint(domain []byte) *edPoint {
	for counter := uint32(0); ; counter++ {
		h := sha512.New()
		h.Write(domain)
		h.Write([]byte{byte(counter), byte(counter >> 8), byte(counter >> 16), byte(counter >> 24)})
		digest := h.Sum(nil)[:32]

		p, err := new(edwards25519.Point).SetBytes(digest)
		if err != nil {
			continue
		}
		return &edPoint{p: p}
	}
}

func (p *edPoint) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], p.p.Bytes())
	return out
}

func (p *edPoint) String() string {
	b := p.Bytes()
	return hex.EncodeToString(b[:])
}

func (p *edPoint) Add(other *edPoint) *edPoint {
	return &edPoint{p: new(edwards25519.Point).Add(p.p, other.p)}
}

func (p *edPoint) Subtract(other *edPoint) *edPoint {
	return &edPoint{p: new(edwards25519.Point).Subtract(p.p, other.p)}
}

func (p *edPoint) ScalarMult(s *edScalar) *edPoint {
	return &edPoint{p: new(edwards25519.Point).ScalarMult(s.s, p.p)}
}

func (p *edPoint) ScalarBaseMult(s *edScalar) *edPoint {
	return &edPoint{p: new(edwards25519.Point).ScalarBaseMult(s.s)}
}

func (p *edPoint) Equal(other *edPoint) bool {
	return p.p.Equal(other.p) == 1
}

func edPointFromBytes(b [32]byte) (*edPoint, error) {
	p, err := new(edwards25519.Point).SetBytes(b[:])
	if err != nil {
		return nil, err
	}
	return &edPoint{p: p}, nil
}

// Package dleq proves that a secp256k1 point and an Ed25519 (Monero curve)
// point share the same discrete logarithm, without revealing it. swapd uses
// this to let Alice convince Bob that the point she puts on Bitcoin as an
// adaptor (T = s_a*G) carries the same scalar s_a that, added to Bob's half,
// unlocks the shared Monero output (§3, §4.A).
//
// The proof decomposes the shared secret into bits and, for each bit, runs
// a linked ring signature across both curves' Pedersen commitments so that
// a single challenge chain ties the bit's value together on both sides. It
// is a simplified construction in the spirit of the cross-group range
// proofs used by real atomic-swap implementations, not an audited one.
package dleq

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

// NumBits is the number of bits proven. A secret in [0, 2^NumBits) is below
// both the secp256k1 and the Ed25519 group orders, so it is a valid scalar
// on both curves without reduction. Canonical Monero scalars in
// [2^252, l) are outside this range and cannot be proven.
const NumBits = 252

var (
	// ErrInvalidProof is returned by Verify when the ring chain does not close.
	ErrInvalidProof = fmt.Errorf("dleq: proof does not verify")
)

var (
	secpH = secp256k1.HashToPoint([]byte("swapd/dleq/secp256k1/H"))
	secpG = secp256k1.Generator()
	edH   = edHashToPoint([]byte("swapd/dleq/ed25519/H"))
	edG   = edGenerator()
)

// Interface is implemented by a party that can both generate and check a
// cross-group discrete-log-equality proof.
type Interface interface {
	Prove() (*Proof, error)
	Verify(*Proof) (*VerifyResult, error)
}

// Proof carries the prover's secret (only ever populated on the prover's own
// side) alongside the wire-encoded ring proof that actually crosses the
// network.
type Proof struct {
	secret [32]byte
	proof  []byte
}

// NewProofWithoutSecret wraps a proof received from a counterparty.
func NewProofWithoutSecret(p []byte) *Proof {
	return &Proof{proof: p}
}

// NewProofWithSecret returns a Proof holding only the secret, ready to be
// passed to CrossGroupProof.Prove.
func NewProofWithSecret(s [32]byte) *Proof {
	return &Proof{secret: s}
}

// Secret returns the proof's 32-byte secret.
func (p *Proof) Secret() [32]byte {
	return p.secret
}

// Proof returns the encoded ring proof.
func (p *Proof) Proof() []byte {
	return p.proof
}

// VerifyResult carries the public keys a verified proof relates.
type VerifyResult struct {
	ed25519Pub   [32]byte
	secp256k1Pub *secp256k1.PublicKey
}

// Secp256k1PublicKey returns the secp256k1 public key the proof ties to the
// Monero-side spend key.
func (r *VerifyResult) Secp256k1PublicKey() *secp256k1.PublicKey {
	return r.secp256k1Pub
}

// CrossGroupProof proves knowledge of secret x such that x*G1 == P1 and
// x*G2 == P2, for the secp256k1 basis G1 and the Ed25519 basis G2.
type CrossGroupProof struct {
	secret [32]byte
}

// NewCrossGroupProof builds a prover for secret, which must be less than
// 2^NumBits read as a little-endian integer; protocol.GenerateKeysAndProof
// clears the top four bits of a random 32-byte value to satisfy this.
func NewCrossGroupProof(secret [32]byte) *CrossGroupProof {
	return &CrossGroupProof{secret: secret}
}

type wireBitProof struct {
	C1   [33]byte `cbor:"1,keyasint"`
	C2   [32]byte `cbor:"2,keyasint"`
	E0   [32]byte `cbor:"3,keyasint"`
	S1_0 [32]byte `cbor:"4,keyasint"`
	S1_1 [32]byte `cbor:"5,keyasint"`
	S2_0 [32]byte `cbor:"6,keyasint"`
	S2_1 [32]byte `cbor:"7,keyasint"`
}

type wireProof struct {
	P1   [33]byte       `cbor:"1,keyasint"`
	P2   [32]byte       `cbor:"2,keyasint"`
	Bits []wireBitProof `cbor:"3,keyasint"`
	R1E  [32]byte       `cbor:"4,keyasint"`
	R1S  [32]byte       `cbor:"5,keyasint"`
	R2E  [32]byte       `cbor:"6,keyasint"`
	R2S  [32]byte       `cbor:"7,keyasint"`
}

// bitTranscript hashes everything that pins a bit's ring challenge: the
// commitments, the bit index, and the pair of announcement points.
func bitTranscript(bitIndex int, c1 [33]byte, c2 [32]byte, r1 [33]byte, r2 [32]byte) [32]byte {
	h := sha256.New()
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], uint32(bitIndex))
	h.Write(idx[:])
	h.Write(c1[:])
	h.Write(c2[:])
	h.Write(r1[:])
	h.Write(r2[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Prove builds a ring proof that secp256k1.Generator()*secret and
// ed25519 generator*secret share the same discrete log.
func (d *CrossGroupProof) Prove() (*Proof, error) {
	secretScalarSecp := secp256k1.ScalarFromBytes(d.secret)
	secretScalarEd, err := edScalarFromCanonicalBytes(d.secret)
	if err != nil {
		return nil, fmt.Errorf("dleq: secret is not a valid ed25519 scalar: %w", err)
	}

	p1 := secpG.ScalarMult(secretScalarSecp.Bytes())
	p2 := edG.ScalarBaseMult(secretScalarEd)

	wp := wireProof{}
	wp.P1 = p1.Compressed()
	wp.P2 = p2.Bytes()
	wp.Bits = make([]wireBitProof, NumBits)

	r1Sum := secp256k1.ScalarFromBytes([32]byte{})
	r2Sum, err := edScalarFromCanonicalBytes([32]byte{})
	if err != nil {
		return nil, err
	}

	pow1 := secp256k1.ScalarFromBytes(oneBytes())
	pow2Bytes := [32]byte{}
	pow2Bytes[0] = 1
	pow2, err := edScalarFromCanonicalBytes(pow2Bytes)
	if err != nil {
		return nil, err
	}

	for i := 0; i < NumBits; i++ {
		bit := secretScalarEd.bit(i)

		r1, err := secp256k1.RandomScalar()
		if err != nil {
			return nil, err
		}
		r2, err := edRandomScalar()
		if err != nil {
			return nil, err
		}

		c1 := secpH.ScalarMult(r1.Bytes())
		c2 := edH.ScalarMult(r2)
		if bit == 1 {
			c1 = c1.Add(secpG)
			c2 = c2.Add(edG)
		}

		bp, err := proveBit(i, bit, c1, c2, r1, r2)
		if err != nil {
			return nil, err
		}
		wp.Bits[i] = bp

		r1Sum = r1Sum.Add(r1.Mul(pow1))
		r2Sum = r2Sum.Add(r2.Mul(pow2))

		pow1 = pow1.Add(pow1)
		pow2 = pow2.Add(pow2)
	}

	// Opening proofs tie the aggregate blinding excess of the bit
	// commitments back to the public points P1, P2.
	sum1 := aggregateSecp(wp.Bits)
	sum2 := aggregateEd(wp.Bits)

	y1 := sum1.Subtract(p1)
	y2 := sum2.Subtract(p2)

	e1, s1, err := schnorrProveSecp(y1, r1Sum)
	if err != nil {
		return nil, err
	}
	e2, s2, err := schnorrProveEd(y2, r2Sum)
	if err != nil {
		return nil, err
	}
	wp.R1E, wp.R1S = e1, s1
	wp.R2E, wp.R2S = e2, s2

	encoded, err := cbor.Marshal(wp)
	if err != nil {
		return nil, fmt.Errorf("dleq: encoding proof: %w", err)
	}

	return &Proof{secret: d.secret, proof: encoded}, nil
}

// Verify checks a proof received from a counterparty and returns the
// secp256k1 public key it proves equal (in discrete log) to the
// counterparty's Monero-curve spend key contribution.
func (d *CrossGroupProof) Verify(p *Proof) (*VerifyResult, error) {
	var wp wireProof
	if err := cbor.Unmarshal(p.proof, &wp); err != nil {
		return nil, fmt.Errorf("dleq: decoding proof: %w", err)
	}
	if len(wp.Bits) != NumBits {
		return nil, ErrInvalidProof
	}

	for i, bp := range wp.Bits {
		if !verifyBit(i, bp) {
			return nil, fmt.Errorf("%w: bit %d", ErrInvalidProof, i)
		}
	}

	p1, err := secp256k1PointFromCompressed(wp.P1)
	if err != nil {
		return nil, err
	}
	p2, err := edPointFromBytes(wp.P2)
	if err != nil {
		return nil, err
	}

	sum1 := aggregateSecp(wp.Bits)
	sum2 := aggregateEd(wp.Bits)

	y1 := sum1.Subtract(p1)
	y2 := sum2.Subtract(p2)

	if !schnorrVerifySecp(y1, wp.R1E, wp.R1S) {
		return nil, fmt.Errorf("%w: secp256k1 opening", ErrInvalidProof)
	}
	if !schnorrVerifyEd(y2, wp.R2E, wp.R2S) {
		return nil, fmt.Errorf("%w: ed25519 opening", ErrInvalidProof)
	}

	return &VerifyResult{
		ed25519Pub:   wp.P2,
		secp256k1Pub: p1,
	}, nil
}

func oneBytes() [32]byte {
	var b [32]byte
	b[31] = 1
	return b
}

func secp256k1PointFromCompressed(b [33]byte) (*secp256k1.PublicKey, error) {
	return secp256k1.PublicKeyFromCompressed(b)
}

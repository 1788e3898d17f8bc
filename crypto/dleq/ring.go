package dleq

import (
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

// proveBit builds the 2-branch linked ring for a single bit, given the bit's
// Pedersen commitments on both curves and the blinding scalars used to build
// them.
func proveBit(
	bitIndex int,
	bit byte,
	c1 *secp256k1.PublicKey,
	c2 *edPoint,
	r1 *secp256k1.Scalar,
	r2 *edScalar,
) (wireBitProof, error) {
	var out wireBitProof
	out.C1 = c1.Compressed()
	out.C2 = c2.Bytes()

	real := bit
	fake := byte(1) - bit

	k1, err := secp256k1.RandomScalar()
	if err != nil {
		return out, err
	}
	k2, err := edRandomScalar()
	if err != nil {
		return out, err
	}

	rReal1 := secpH.ScalarMult(k1.Bytes())
	rReal2 := edH.ScalarMult(k2)

	eFake := bitTranscript(bitIndex, out.C1, out.C2, rReal1.Compressed(), rReal2.Bytes())

	s1Fake, err := secp256k1.RandomScalar()
	if err != nil {
		return out, err
	}
	s2Fake, err := edRandomScalar()
	if err != nil {
		return out, err
	}

	x1Fake := branchTarget1(c1, fake)
	x2Fake := branchTarget2(c2, fake)

	eFakeSecp := secp256k1.ScalarFromBytes(eFake)
	eFakeEd := edScalarFromChallenge(eFake)

	rFake1 := secpH.ScalarMult(s1Fake.Bytes()).Subtract(x1Fake.ScalarMult(eFakeSecp.Bytes()))
	rFake2 := edH.ScalarMult(s2Fake).Subtract(x2Fake.ScalarMult(eFakeEd))

	eReal := bitTranscript(bitIndex, out.C1, out.C2, rFake1.Compressed(), rFake2.Bytes())

	eRealSecp := secp256k1.ScalarFromBytes(eReal)
	eRealEd := edScalarFromChallenge(eReal)

	sReal1 := k1.Add(eRealSecp.Mul(r1))
	sReal2 := k2.Add(eRealEd.Mul(r2))

	var e0 [32]byte
	if real == 0 {
		e0 = eReal
		out.S1_0, out.S2_0 = sReal1.Bytes(), sReal2.Bytes()
		out.S1_1, out.S2_1 = s1Fake.Bytes(), s2Fake.Bytes()
	} else {
		e0 = eFake
		out.S1_0, out.S2_0 = s1Fake.Bytes(), s2Fake.Bytes()
		out.S1_1, out.S2_1 = sReal1.Bytes(), sReal2.Bytes()
	}
	out.E0 = e0

	return out, nil
}

// verifyBit recomputes the ring chain for a bit and checks it closes.
func verifyBit(bitIndex int, bp wireBitProof) bool {
	c1, err := secp256k1.PublicKeyFromCompressed(bp.C1)
	if err != nil {
		return false
	}
	c2, err := edPointFromBytes(bp.C2)
	if err != nil {
		return false
	}

	e0Secp := secp256k1.ScalarFromBytes(bp.E0)
	e0Ed := edScalarFromChallenge(bp.E0)

	x1_0 := branchTarget1(c1, 0)
	x2_0 := branchTarget2(c2, 0)

	s1_0 := secp256k1.ScalarFromBytes(bp.S1_0)
	s2_0, err := edScalarFromCanonicalBytes(bp.S2_0)
	if err != nil {
		return false
	}

	r0_1 := secpH.ScalarMult(s1_0.Bytes()).Subtract(x1_0.ScalarMult(e0Secp.Bytes()))
	r0_2 := edH.ScalarMult(s2_0).Subtract(x2_0.ScalarMult(e0Ed))

	e1 := bitTranscript(bitIndex, bp.C1, bp.C2, r0_1.Compressed(), r0_2.Bytes())
	e1Secp := secp256k1.ScalarFromBytes(e1)
	e1Ed := edScalarFromChallenge(e1)

	x1_1 := branchTarget1(c1, 1)
	x2_1 := branchTarget2(c2, 1)

	s1_1 := secp256k1.ScalarFromBytes(bp.S1_1)
	s2_1, err := edScalarFromCanonicalBytes(bp.S2_1)
	if err != nil {
		return false
	}

	r1_1 := secpH.ScalarMult(s1_1.Bytes()).Subtract(x1_1.ScalarMult(e1Secp.Bytes()))
	r1_2 := edH.ScalarMult(s2_1).Subtract(x2_1.ScalarMult(e1Ed))

	e0Check := bitTranscript(bitIndex, bp.C1, bp.C2, r1_1.Compressed(), r1_2.Bytes())

	return e0Check == bp.E0
}

// branchTarget1 returns C1 if branch == 0, or C1 - G1 if branch == 1: the
// point whose discrete log (relative to H1) the ring proves knowledge of.
func branchTarget1(c1 *secp256k1.PublicKey, branch byte) *secp256k1.PublicKey {
	if branch == 0 {
		return c1
	}
	return c1.Subtract(secpG)
}

func branchTarget2(c2 *edPoint, branch byte) *edPoint {
	if branch == 0 {
		return c2
	}
	return c2.Subtract(edG)
}

// aggregateSecp computes sum_i 2^i * C1_i over the proof's bit commitments.
func aggregateSecp(bits []wireBitProof) *secp256k1.PublicKey {
	pow := secp256k1.ScalarFromBytes(oneBytes())
	var sum *secp256k1.PublicKey
	for _, bp := range bits {
		c1, err := secp256k1.PublicKeyFromCompressed(bp.C1)
		if err != nil {
			// an invalid commitment fails the opening proof check downstream
			pow = pow.Add(pow)
			continue
		}
		term := c1.ScalarMult(pow.Bytes())
		if sum == nil {
			sum = term
		} else {
			sum = sum.Add(term)
		}
		pow = pow.Add(pow)
	}
	return sum
}

// aggregateEd computes sum_i 2^i * C2_i over the proof's bit commitments.
func aggregateEd(bits []wireBitProof) *edPoint {
	powBytes := [32]byte{}
	powBytes[0] = 1
	pow, _ := edScalarFromCanonicalBytes(powBytes)

	var sum *edPoint
	for _, bp := range bits {
		c2, err := edPointFromBytes(bp.C2)
		if err != nil {
			pow = pow.Add(pow)
			continue
		}
		term := c2.ScalarMult(pow)
		if sum == nil {
			sum = term
		} else {
			sum = sum.Add(term)
		}
		pow = pow.Add(pow)
	}
	return sum
}

package secp256k1

import (
	"crypto/sha256"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// fieldPrime is p for secp256k1: y^2 = x^3 + 7 mod p.
var fieldPrime, _ = new(big.Int).SetString(
	"fffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)

var curveB = big.NewInt(7)

// sqrtExponent is (p+1)/4, valid since p ≡ 3 (mod 4) for secp256k1, letting
// us compute modular square roots with a single exponentiation.
var sqrtExponent = new(big.Int).Rsh(new(big.Int).Add(fieldPrime, big.NewInt(1)), 2)

// HashToPoint derives a point on secp256k1 from domain by try-and-increment:
// hash domain||counter, treat the digest as a candidate x-coordinate, and
// accept the first counter for which x^3+7 is a quadratic residue mod p.
// The resulting point has no known discrete log relative to the standard
// generator, which is what lets it serve as the second generator of a
// Pedersen commitment in crypto/dleq.
func HashToPoint(domain []byte) *PublicKey {
	for counter := uint32(0); ; counter++ {
		h := sha256.New()
		h.Write(domain)
		h.Write([]byte{byte(counter), byte(counter >> 8), byte(counter >> 16), byte(counter >> 24)})
		digest := h.Sum(nil)

		x := new(big.Int).SetBytes(digest)
		x.Mod(x, fieldPrime)

		rhs := new(big.Int).Exp(x, big.NewInt(3), fieldPrime)
		rhs.Add(rhs, curveB)
		rhs.Mod(rhs, fieldPrime)

		y := new(big.Int).Exp(rhs, sqrtExponent, fieldPrime)
		check := new(big.Int).Exp(y, big.NewInt(2), fieldPrime)
		if check.Cmp(rhs) != 0 {
			continue
		}

		var xBytes, yBytes [32]byte
		x.FillBytes(xBytes[:])
		y.FillBytes(yBytes[:])

		var fx, fy btcec.FieldVal
		fx.SetByteSlice(xBytes[:])
		fy.SetByteSlice(yBytes[:])

		return &PublicKey{key: btcec.NewPublicKey(&fx, &fy)}
	}
}

// Generator returns the secp256k1 base point G.
func Generator() *PublicKey {
	var one [32]byte
	one[31] = 1
	return PrivateKeyFromScalar(one).Public()
}

// ScalarMult returns scalar*k, where scalar is a 32-byte big-endian value
// reduced mod the curve order N.
func (k *PublicKey) ScalarMult(scalar [32]byte) *PublicKey {
	var jp btcec.JacobianPoint
	k.key.AsJacobian(&jp)

	var s btcec.ModNScalar
	s.SetByteSlice(scalar[:])

	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&s, &jp, &result)
	result.ToAffine()
	return &PublicKey{key: btcec.NewPublicKey(&result.X, &result.Y)}
}

// Negate returns -k.
func (k *PublicKey) Negate() *PublicKey {
	var jp btcec.JacobianPoint
	k.key.AsJacobian(&jp)
	jp.Y.Negate(1)
	jp.Y.Normalize()
	jp.ToAffine()
	return &PublicKey{key: btcec.NewPublicKey(&jp.X, &jp.Y)}
}

// Equal reports whether k and other are the same point.
func (k *PublicKey) Equal(other *PublicKey) bool {
	return k.Compressed() == other.Compressed()
}

// Subtract returns k - other.
func (k *PublicKey) Subtract(other *PublicKey) *PublicKey {
	return k.Add(other.Negate())
}

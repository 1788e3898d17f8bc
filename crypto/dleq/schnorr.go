package dleq

import (
	"crypto/sha256"

	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

// schnorrChallenge hashes an arbitrary number of byte strings into a single
// Fiat-Shamir challenge.
func schnorrChallenge(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// schnorrProveSecp proves knowledge of the discrete log of y relative to
// secpH, closing the aggregate-commitment opening for the secp256k1 side.
func schnorrProveSecp(y *secp256k1.PublicKey, secret *secp256k1.Scalar) (e, s [32]byte, err error) {
	k, err := secp256k1.RandomScalar()
	if err != nil {
		return e, s, err
	}
	a := secpH.ScalarMult(k.Bytes())

	yb := y.Compressed()
	ab := a.Compressed()
	challenge := schnorrChallenge(yb[:], ab[:])
	eScalar := secp256k1.ScalarFromBytes(challenge)
	sScalar := k.Add(eScalar.Mul(secret))

	return challenge, sScalar.Bytes(), nil
}

// schnorrVerifySecp checks a proof produced by schnorrProveSecp.
func schnorrVerifySecp(y *secp256k1.PublicKey, e, s [32]byte) bool {
	sScalar := secp256k1.ScalarFromBytes(s)
	eScalar := secp256k1.ScalarFromBytes(e)

	a := secpH.ScalarMult(sScalar.Bytes()).Subtract(y.ScalarMult(eScalar.Bytes()))

	yb := y.Compressed()
	ab := a.Compressed()
	recomputed := schnorrChallenge(yb[:], ab[:])
	return recomputed == e
}

// schnorrProveEd is the same proof on the Ed25519 side.
func schnorrProveEd(y *edPoint, secret *edScalar) (e, s [32]byte, err error) {
	k, err := edRandomScalar()
	if err != nil {
		return e, s, err
	}
	a := edH.ScalarMult(k)

	yb := y.Bytes()
	ab := a.Bytes()
	challenge := schnorrChallenge(yb[:], ab[:])
	eScalar := edScalarFromChallenge(challenge)
	sScalar := k.Add(eScalar.Mul(secret))

	return challenge, sScalar.Bytes(), nil
}

// schnorrVerifyEd checks a proof produced by schnorrProveEd.
func schnorrVerifyEd(y *edPoint, e, s [32]byte) bool {
	sScalar, err := edScalarFromCanonicalBytes(s)
	if err != nil {
		return false
	}
	eScalar := edScalarFromChallenge(e)

	a := edH.ScalarMult(sScalar).Subtract(y.ScalarMult(eScalar))

	yb := y.Bytes()
	ab := a.Bytes()
	recomputed := schnorrChallenge(yb[:], ab[:])
	return recomputed == e
}

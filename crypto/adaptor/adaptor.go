// Package adaptor implements Schnorr adaptor (encrypted) signatures over
// secp256k1, the mechanism that ties the Bitcoin and Monero sides of a swap
// together (§3, §Glossary "Adaptor signature"). Bob encrypts his signature
// for tx_redeem under Alice's adaptor point T = s_a*G; Alice can only
// produce a valid signature by learning t = dlog(T), and the moment she
// publishes it on Bitcoin, Bob recovers t and, via crypto/moneroc, her half
// of the Monero spend key.
package adaptor

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

var (
	// ErrInvalidProof is returned when an encrypted signature is not
	// well-formed for the claimed (public key, adaptor point, message).
	ErrInvalidProof = errors.New("adaptor: invalid encrypted signature")
	// ErrInvalidAdaptor is returned when an adaptor point cannot be used
	// (e.g. the point at infinity).
	ErrInvalidAdaptor = errors.New("adaptor: invalid adaptor point")
	// ErrWitnessMismatch is returned by Recover when the decrypted and
	// encrypted signature scalars do not correspond to the same nonce.
	ErrWitnessMismatch = errors.New("adaptor: recovered witness does not match adaptor point")
)

// EncryptedSignature is a Schnorr signature encrypted under an adaptor
// point T. It verifies against (public key, T, message) but is not itself a
// valid signature until decrypted with t = dlog(T).
type EncryptedSignature struct {
	R    *secp256k1.PublicKey // k*G + T
	SHat *secp256k1.Scalar    // k + e*x
}

// Signature is a standard Schnorr signature: s*G == R + e*P.
type Signature struct {
	R *secp256k1.PublicKey
	S *secp256k1.Scalar
}

// challenge computes e = H(R || P || m), the Fiat-Shamir challenge tying a
// nonce commitment, a signing key, and a message together.
func challenge(r, p *secp256k1.PublicKey, message [32]byte) *secp256k1.Scalar {
	h := sha256.New()
	rc := r.Compressed()
	pc := p.Compressed()
	h.Write(rc[:])
	h.Write(pc[:])
	h.Write(message[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return secp256k1.ScalarFromBytes(out)
}

// Encrypt produces an encrypted signature on message under priv, such that
// only the holder of dlog(adaptorPoint) can turn it into a valid signature.
func Encrypt(priv *secp256k1.PrivateKey, adaptorPoint *secp256k1.PublicKey, message [32]byte) (*EncryptedSignature, error) {
	if adaptorPoint == nil {
		return nil, ErrInvalidAdaptor
	}

	k, err := secp256k1.RandomScalar()
	if err != nil {
		return nil, fmt.Errorf("adaptor: generating nonce: %w", err)
	}

	kG := secp256k1.Generator().ScalarMult(k.Bytes())
	r := kG.Add(adaptorPoint)

	e := challenge(r, priv.Public(), message)

	xScalar := secp256k1.ScalarFromBytes(priv.Scalar())
	sHat := k.Add(e.Mul(xScalar))

	return &EncryptedSignature{R: r, SHat: sHat}, nil
}

// Verify checks that es is well-formed for (pub, adaptorPoint, message)
// without learning dlog(adaptorPoint): it checks
// SHat*G == (R - adaptorPoint) + e*pub.
func (es *EncryptedSignature) Verify(pub, adaptorPoint *secp256k1.PublicKey, message [32]byte) error {
	if adaptorPoint == nil {
		return ErrInvalidAdaptor
	}

	e := challenge(es.R, pub, message)

	lhs := secp256k1.Generator().ScalarMult(es.SHat.Bytes())
	rhs := es.R.Subtract(adaptorPoint).Add(pub.ScalarMult(e.Bytes()))

	if !lhs.Equal(rhs) {
		return ErrInvalidProof
	}
	return nil
}

// Sign produces a plain (non-encrypted) Schnorr signature, used by each
// party to sign their own half of a 2-of-2 witness directly rather than
// through an adaptor point.
func Sign(priv *secp256k1.PrivateKey, message [32]byte) (*Signature, error) {
	k, err := secp256k1.RandomScalar()
	if err != nil {
		return nil, fmt.Errorf("adaptor: generating nonce: %w", err)
	}

	r := secp256k1.Generator().ScalarMult(k.Bytes())
	e := challenge(r, priv.Public(), message)

	xScalar := secp256k1.ScalarFromBytes(priv.Scalar())
	s := k.Add(e.Mul(xScalar))

	return &Signature{R: r, S: s}, nil
}

// Decrypt turns an encrypted signature into a final signature using the
// adaptor secret t = dlog(adaptorPoint). The caller is responsible for
// having already verified es against the matching adaptor point.
func (es *EncryptedSignature) Decrypt(t *secp256k1.Scalar) *Signature {
	return &Signature{R: es.R, S: es.SHat.Add(t)}
}

// Verify checks a final (decrypted) signature against a public key and message.
func (sig *Signature) Verify(pub *secp256k1.PublicKey, message [32]byte) bool {
	e := challenge(sig.R, pub, message)

	lhs := secp256k1.Generator().ScalarMult(sig.S.Bytes())
	rhs := sig.R.Add(pub.ScalarMult(e.Bytes()))

	return lhs.Equal(rhs)
}

// Recover extracts t = dlog(adaptorPoint) given the encrypted signature and
// the final signature that was published once decrypted: t = s - sHat. This
// is the mechanism by which publishing tx_refund or tx_redeem on Bitcoin
// hands the counterparty the other half of the Monero spend key (§3).
func Recover(es *EncryptedSignature, sig *Signature) (*secp256k1.Scalar, error) {
	if !es.R.Equal(sig.R) {
		return nil, ErrWitnessMismatch
	}
	t := sig.S.Add(es.SHat.Negate())
	return t, nil
}

package dleq

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomClampedSecret(t *testing.T) [32]byte {
	t.Helper()
	var b [32]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	b[31] &= 0x0f // clear the top 4 bits so the value is < 2^252
	return b
}

func TestCrossGroupProofRoundTrip(t *testing.T) {
	secret := randomClampedSecret(t)

	prover := NewCrossGroupProof(secret)
	proof, err := prover.Prove()
	require.NoError(t, err)

	received := NewProofWithoutSecret(proof.Proof())

	verifier := NewCrossGroupProof([32]byte{})
	result, err := verifier.Verify(received)
	require.NoError(t, err)
	require.NotNil(t, result.Secp256k1PublicKey())
}

func TestCrossGroupProofRejectsTamperedBit(t *testing.T) {
	secret := randomClampedSecret(t)

	prover := NewCrossGroupProof(secret)
	proof, err := prover.Prove()
	require.NoError(t, err)

	tampered := make([]byte, len(proof.Proof()))
	copy(tampered, proof.Proof())
	tampered[len(tampered)-1] ^= 0xff

	verifier := NewCrossGroupProof([32]byte{})
	_, err = verifier.Verify(NewProofWithoutSecret(tampered))
	require.Error(t, err)
}

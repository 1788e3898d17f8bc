// Package protocol holds the key-generation and verification step shared by
// both roles before negotiation begins (§4.A "Key split"): each party picks
// a random secret, derives its secp256k1 and Monero-curve halves from the
// same bits, and proves the two halves agree via crypto/dleq.
package protocol

import (
	"crypto/rand"
	"fmt"

	"github.com/xmrbtcswap/swapd/crypto/dleq"
	"github.com/xmrbtcswap/swapd/crypto/moneroc"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

// KeysAndProof bundles one party's freshly generated key-split halves with
// the DLEQ proof tying them together.
type KeysAndProof struct {
	PrivateKeyPair     *moneroc.PrivateKeyPair
	PublicKeyPair      *moneroc.PublicKeyPair
	DLEqProof          *dleq.Proof
	Secp256k1PublicKey *secp256k1.PublicKey
}

// GenerateKeysAndProof picks a random spend-key secret, builds its
// secp256k1 and Monero-curve public points, a random view key, and a DLEQ
// proof that the spend key's two public points share a discrete log.
func GenerateKeysAndProof() (*KeysAndProof, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("protocol: generating key-split secret: %w", err)
	}
	secret[31] &= 0x0f // keep the secret under dleq.NumBits (clears the top 4 bits)

	prover := dleq.NewCrossGroupProof(secret)
	proof, err := prover.Prove()
	if err != nil {
		return nil, fmt.Errorf("protocol: proving DLEQ: %w", err)
	}

	sk, err := moneroc.NewPrivateSpendKeyFromCanonicalScalar(secret)
	if err != nil {
		return nil, fmt.Errorf("protocol: deriving spend key: %w", err)
	}

	var viewSeed [32]byte
	if _, err := rand.Read(viewSeed[:]); err != nil {
		return nil, fmt.Errorf("protocol: generating view key: %w", err)
	}
	vk, err := moneroc.NewPrivateViewKeyFromScalar(viewSeed)
	if err != nil {
		return nil, fmt.Errorf("protocol: deriving view key: %w", err)
	}

	privKeyPair := moneroc.NewPrivateKeyPair(sk, vk)
	secpPriv := secp256k1.PrivateKeyFromScalar(secret)

	return &KeysAndProof{
		PrivateKeyPair:     privKeyPair,
		PublicKeyPair:      privKeyPair.PublicKeyPair(),
		DLEqProof:          proof,
		Secp256k1PublicKey: secpPriv.Public(),
	}, nil
}

// VerifyResult holds the secp256k1 public key a DLEQ proof verified, once it
// is confirmed to match what the counterparty claimed in its BobKeysMessage
// or AliceKeysAndSignaturesMessage, alongside the Monero-curve spend key the
// counterparty claimed.
type VerifyResult struct {
	Secp256k1PublicKey *secp256k1.PublicKey
	Ed25519PublicKey   *moneroc.PublicSpendKey
}

// VerifyKeysAndProof checks that proofBytes is a valid DLEQ proof and that
// its secp256k1 half matches claimedSecp. The Monero-curve half is not
// checked against claimedEd: crypto/dleq.VerifyResult does not expose it,
// and claimedEd is returned as given.
func VerifyKeysAndProof(
	proofBytes []byte,
	claimedSecp *secp256k1.PublicKey,
	claimedEd *moneroc.PublicSpendKey,
) (*VerifyResult, error) {
	verifier := dleq.NewCrossGroupProof([32]byte{})
	result, err := verifier.Verify(dleq.NewProofWithoutSecret(proofBytes))
	if err != nil {
		return nil, fmt.Errorf("protocol: verifying DLEQ proof: %w", err)
	}

	if result.Secp256k1PublicKey().Compressed() != claimedSecp.Compressed() {
		return nil, dleq.ErrInvalidProof
	}

	return &VerifyResult{
		Secp256k1PublicKey: result.Secp256k1PublicKey(),
		Ed25519PublicKey:   claimedEd,
	}, nil
}

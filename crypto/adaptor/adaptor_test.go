package adaptor

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	priv, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)

	adaptorSecret, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	adaptorPoint := adaptorSecret.Public()

	message := sha256.Sum256([]byte("tx_redeem sighash"))

	enc, err := Encrypt(priv, adaptorPoint, message)
	require.NoError(t, err)

	require.NoError(t, enc.Verify(priv.Public(), adaptorPoint, message))

	tScalar := secp256k1.ScalarFromBytes(adaptorSecret.Scalar())
	sig := enc.Decrypt(tScalar)
	require.True(t, sig.Verify(priv.Public(), message))
}

func TestRecoverExtractsAdaptorSecret(t *testing.T) {
	priv, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)

	adaptorSecret, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	adaptorPoint := adaptorSecret.Public()

	message := sha256.Sum256([]byte("tx_refund sighash"))

	enc, err := Encrypt(priv, adaptorPoint, message)
	require.NoError(t, err)

	tScalar := secp256k1.ScalarFromBytes(adaptorSecret.Scalar())
	sig := enc.Decrypt(tScalar)

	recovered, err := Recover(enc, sig)
	require.NoError(t, err)
	require.Equal(t, tScalar.Bytes(), recovered.Bytes())
}

func TestVerifyRejectsWrongAdaptorPoint(t *testing.T) {
	priv, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)

	adaptorSecret, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	adaptorPoint := adaptorSecret.Public()

	wrongSecret, err := secp256k1.NewPrivateKey()
	require.NoError(t, err)
	wrongPoint := wrongSecret.Public()

	message := sha256.Sum256([]byte("tx_redeem sighash"))

	enc, err := Encrypt(priv, adaptorPoint, message)
	require.NoError(t, err)

	require.ErrorIs(t, enc.Verify(priv.Public(), wrongPoint, message), ErrInvalidProof)
}

package moneroc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrivateSpendKeyAddMatchesPublicAdd(t *testing.T) {
	var seedA, seedB [32]byte
	seedA[0] = 1
	seedB[0] = 2

	skA, err := NewPrivateSpendKeyFromScalar(seedA)
	require.NoError(t, err)
	skB, err := NewPrivateSpendKeyFromScalar(seedB)
	require.NoError(t, err)

	sum := skA.Add(skB)

	pubFromSum := sum.Public()
	pubFromAdd := skA.Public().Add(skB.Public())

	require.Equal(t, pubFromSum.Bytes(), pubFromAdd.Bytes())
}

func TestSumSpendAndViewKeys(t *testing.T) {
	var seeds [4][32]byte
	for i := range seeds {
		seeds[i][0] = byte(i + 1)
	}

	skA, err := NewPrivateSpendKeyFromScalar(seeds[0])
	require.NoError(t, err)
	vkA, err := NewPrivateViewKeyFromScalar(seeds[1])
	require.NoError(t, err)
	skB, err := NewPrivateSpendKeyFromScalar(seeds[2])
	require.NoError(t, err)
	vkB, err := NewPrivateViewKeyFromScalar(seeds[3])
	require.NoError(t, err)

	a := NewPrivateKeyPair(skA, vkA).PublicKeyPair()
	b := NewPrivateKeyPair(skB, vkB).PublicKeyPair()

	combined := SumSpendAndViewKeys(a, b)

	wantSpend := skA.Add(skB).Public()
	wantView := vkA.Add(vkB).Public()

	require.Equal(t, wantSpend.Bytes(), combined.SpendKey().Bytes())
	require.Equal(t, wantView.Bytes(), combined.ViewKey().Bytes())
}

func TestPublicSpendKeyRoundTrip(t *testing.T) {
	var seed [32]byte
	seed[0] = 7
	sk, err := NewPrivateSpendKeyFromScalar(seed)
	require.NoError(t, err)

	pub := sk.Public()
	decoded, err := PublicSpendKeyFromBytes(pub.Bytes())
	require.NoError(t, err)
	require.Equal(t, pub.Bytes(), decoded.Bytes())
}

func TestNewAddressDeterministic(t *testing.T) {
	var seedSpend, seedView [32]byte
	seedSpend[0] = 9
	seedView[0] = 10

	sk, err := NewPrivateSpendKeyFromScalar(seedSpend)
	require.NoError(t, err)
	vk, err := NewPrivateViewKeyFromScalar(seedView)
	require.NoError(t, err)

	addr1 := NewAddress(sk.Public(), vk.Public(), Mainnet)
	addr2 := NewAddress(sk.Public(), vk.Public(), Mainnet)
	require.Equal(t, addr1, addr2)

	addrStagenet := NewAddress(sk.Public(), vk.Public(), Stagenet)
	require.NotEqual(t, addr1, addrStagenet)
}

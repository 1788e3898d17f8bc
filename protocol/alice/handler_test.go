package alice

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/coins"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/net/message"
)

func mustDecimal(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func testOffer(t *testing.T, min, max, rate string) *types.Offer {
	t.Helper()
	return types.NewOffer(
		mustDecimal(t, min),
		mustDecimal(t, max),
		coins.NewExchangeRate(mustDecimal(t, rate)),
	)
}

func TestOfferManager_AddRemoveGetOffers(t *testing.T) {
	om := NewOfferManager()
	require.Empty(t, om.GetOffers())

	o := testOffer(t, "1", "10", "0.05")
	om.Add(o)
	require.Len(t, om.GetOffers(), 1)
	require.Equal(t, o.ID, om.GetOffers()[0].ID)

	om.Remove(o.ID)
	require.Empty(t, om.GetOffers())
}

func TestOfferManager_Matching(t *testing.T) {
	om := NewOfferManager()
	o := testOffer(t, "1", "10", "0.05")
	om.Add(o)

	require.Equal(t, o.ID, om.matching(mustDecimal(t, "5")).ID)
	require.Equal(t, o.ID, om.matching(mustDecimal(t, "1")).ID)
	require.Equal(t, o.ID, om.matching(mustDecimal(t, "10")).ID)
	require.Nil(t, om.matching(mustDecimal(t, "0.5")))
	require.Nil(t, om.matching(mustDecimal(t, "11")))
}

func TestHandleInitiateMessage_NoMatchingOffer(t *testing.T) {
	offers := NewOfferManager()
	h := NewHandler(nil, offers)

	req := &message.SwapRequest{
		BTCAmount: mustDecimal(t, "0.5"),
		XMRAmount: mustDecimal(t, "10"),
	}

	s, resp, err := h.HandleInitiateMessage("", nil, req)
	require.NoError(t, err)
	require.Nil(t, s)

	sr, ok := resp.(*message.SwapResponse)
	require.True(t, ok)
	require.False(t, sr.Accepted)

	require.Len(t, offers.GetOffers(), 0)
}

func TestHandleInitiateMessage_AmountMismatch(t *testing.T) {
	offers := NewOfferManager()
	offers.Add(testOffer(t, "1", "10", "0.05"))
	h := NewHandler(nil, offers)

	req := &message.SwapRequest{
		// at a rate of 0.05 BTC/XMR, 5 XMR should cost 0.25 BTC, not 1.
		BTCAmount: mustDecimal(t, "1"),
		XMRAmount: mustDecimal(t, "5"),
	}

	s, resp, err := h.HandleInitiateMessage("", nil, req)
	require.NoError(t, err)
	require.Nil(t, s)

	sr, ok := resp.(*message.SwapResponse)
	require.True(t, ok)
	require.False(t, sr.Accepted)

	// a rejected request must not consume the offer.
	require.Len(t, offers.GetOffers(), 1)
}

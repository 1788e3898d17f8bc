package alice

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
	"github.com/xmrbtcswap/swapd/net"
	"github.com/xmrbtcswap/swapd/net/message"
	"github.com/xmrbtcswap/swapd/protocol"
	"github.com/xmrbtcswap/swapd/protocol/backend"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

// OfferManager tracks the offers Alice currently has open for trade, keyed
// by offer ID, so Handler can answer GetOffers and look one up by the
// amounts in an incoming SwapRequest without touching the swap manager.
type OfferManager struct {
	mu     sync.Mutex
	offers map[types.Hash]*types.Offer
}

// NewOfferManager returns an empty offer book.
func NewOfferManager() *OfferManager {
	return &OfferManager{offers: make(map[types.Hash]*types.Offer)}
}

// Add makes o available for Bob to take.
func (m *OfferManager) Add(o *types.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = o
}

// Remove withdraws an offer, e.g. once it has been taken.
func (m *OfferManager) Remove(id types.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.offers, id)
}

// GetOffers returns every currently open offer.
func (m *OfferManager) GetOffers() []*types.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.Offer, 0, len(m.offers))
	for _, o := range m.offers {
		out = append(out, o)
	}
	return out
}

// matching returns the first open offer whose [MinAmount, MaxAmount] range
// covers xmrAmount, or nil.
func (m *OfferManager) matching(xmrAmount *apd.Decimal) *types.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.offers {
		if xmrAmount.Cmp(o.MinAmount) >= 0 && xmrAmount.Cmp(o.MaxAmount) <= 0 {
			return o
		}
	}
	return nil
}

// Handler answers incoming SwapRequests on Alice's behalf (§4.C step 1),
// implementing net.MakerHandler. Grounded on the teacher's Host/handler
// split: the Host owns the transport and the offer book's consumer-facing
// concerns stay here, the way xmrmaker's instanceManager used to hand off
// a freshly built swapState to the host after accepting a request.
type Handler struct {
	backend backend.Backend
	offers  *OfferManager
}

var _ net.MakerHandler = (*Handler)(nil)

// NewHandler returns a Handler serving offers out of offers against b.
func NewHandler(b backend.Backend, offers *OfferManager) *Handler {
	return &Handler{backend: b, offers: offers}
}

// GetOffers implements net.MakerHandler.
func (h *Handler) GetOffers() []*types.Offer {
	return h.offers.GetOffers()
}

// HandleInitiateMessage implements net.MakerHandler: it decides whether to
// accept req against the open offer book, and if so generates Alice's
// key-split half, registers a fresh swap, and starts driving it.
func (h *Handler) HandleInitiateMessage(
	peerID peer.ID,
	stream *net.Stream,
	req *message.SwapRequest,
) (net.SwapState, common.Message, error) {
	offer := h.offers.matching(req.XMRAmount)
	if offer == nil {
		return nil, &message.SwapResponse{Accepted: false}, nil
	}

	expectedBTC, err := offer.ExchangeRate.ToBTC(req.XMRAmount)
	if err != nil {
		return nil, nil, fmt.Errorf("alice: computing expected btc amount: %w", err)
	}
	if req.BTCAmount.Cmp(expectedBTC) != 0 {
		return nil, &message.SwapResponse{Accepted: false}, nil
	}

	swapID, err := types.NewSwapID()
	if err != nil {
		return nil, nil, fmt.Errorf("alice: generating swap id: %w", err)
	}

	own, err := protocol.GenerateKeysAndProof()
	if err != nil {
		return nil, nil, fmt.Errorf("alice: generating key-split material: %w", err)
	}

	aliceLockKey, err := secp256k1.NewPrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("alice: generating lock key: %w", err)
	}

	h.offers.Remove(offer.ID)

	started := Started{
		SwapID:       swapID,
		BTCAmount:    req.BTCAmount,
		XMRAmount:    req.XMRAmount,
		Own:          own,
		AliceLockKey: aliceLockKey,
	}

	info := &swap.Info{
		ID:           swapID,
		Role:         swap.AliceRole,
		PeerID:       peerID.String(),
		BTCAmount:    req.BTCAmount,
		XMRAmount:    req.XMRAmount,
		ExchangeRate: offer.ExchangeRate,
		Status:       types.ExpectingKeys,
		StartTime:    time.Now(),
	}
	if err := h.backend.SwapManager().AddSwap(info); err != nil {
		return nil, nil, fmt.Errorf("alice: registering swap: %w", err)
	}

	ch := &Channel{Stream: stream}
	s := newSwapStateFromStart(h.backend, started, ch, info)

	resp := &message.SwapResponse{
		Accepted:         true,
		SwapID:           swapID,
		BTCAmount:        req.BTCAmount,
		XMRAmount:        req.XMRAmount,
		BitcoinPublicKey: aliceLockKey.Public(),
	}
	return s, resp, nil
}

// ResumeSwap reconstructs a driver for a swap that was still in progress
// when swapd last shut down (§4.E), the Alice-side counterpart of
// bob.ResumeSwap. The persisted state carries no live Channel, so
// newSwapStateFromOngoing's runFrom resumes a Negotiated/BtcLocked state
// straight into SafelyAborted rather than stalling on a substream that no
// longer exists.
func ResumeSwap(b backend.Backend, info *swap.Info) (net.SwapState, error) {
	encoded, err := b.StateStore().GetLatestState(info.ID)
	if err != nil {
		return nil, fmt.Errorf("alice: loading persisted state for %s: %w", info.ID, err)
	}

	last, err := UnmarshalState(encoded)
	if err != nil {
		return nil, fmt.Errorf("alice: decoding persisted state for %s: %w", info.ID, err)
	}

	s := newSwapStateFromOngoing(b, last, info)
	b.Net().TrackSwap(s)
	return s, nil
}

package bob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/crypto/secp256k1"
	"github.com/xmrbtcswap/swapd/net"
	"github.com/xmrbtcswap/swapd/net/message"
	"github.com/xmrbtcswap/swapd/protocol"
	"github.com/xmrbtcswap/swapd/protocol/backend"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

// ErrSwapDeclined is returned by RequestSwap when the counterparty answers
// with SwapResponse.Accepted == false (e.g. the amounts no longer match any
// open offer).
var ErrSwapDeclined = errors.New("bob: counterparty declined swap request")

// RequestSwap dials peerID, offers to trade btcAmount for xmrAmount (§4.C
// step 1), and, if accepted, generates Bob's key-split material and begins
// driving the swap. Unlike Alice's Handler, which answers requests arriving
// on a long-lived listener, Bob always originates the dial himself, so
// there is no separate offer book on this side: the amounts Bob offers here
// come straight from the caller.
func RequestSwap(
	ctx context.Context,
	b backend.Backend,
	peerID peer.ID,
	btcAmount *apd.Decimal,
	xmrAmount *apd.Decimal,
) (net.SwapState, error) {
	stream, err := b.Net().DialSwap(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("bob: dialing %s: %w", peerID, err)
	}

	req := &message.SwapRequest{BTCAmount: btcAmount, XMRAmount: xmrAmount}
	if err := stream.Send(req); err != nil {
		stream.Close()
		return nil, fmt.Errorf("bob: sending swap request: %w", err)
	}

	msg, err := stream.Receive()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("bob: receiving swap response: %w", err)
	}
	resp, ok := msg.(*message.SwapResponse)
	if !ok {
		stream.Close()
		return nil, fmt.Errorf("bob: got %T while expecting swap response", msg)
	}
	if !resp.Accepted {
		stream.Close()
		return nil, ErrSwapDeclined
	}

	own, err := protocol.GenerateKeysAndProof()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("bob: generating key-split material: %w", err)
	}

	bobLockKey, err := secp256k1.NewPrivateKey()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("bob: generating lock key: %w", err)
	}

	started := Started{
		SwapID:                resp.SwapID,
		BTCAmount:             resp.BTCAmount,
		XMRAmount:             resp.XMRAmount,
		Own:                   own,
		BobLockKey:            bobLockKey,
		AliceBitcoinPublicKey: resp.BitcoinPublicKey,
	}

	info := &swap.Info{
		ID:        resp.SwapID,
		Role:      swap.BobRole,
		PeerID:    peerID.String(),
		BTCAmount: resp.BTCAmount,
		XMRAmount: resp.XMRAmount,
		Status:    types.ExpectingKeys,
		StartTime: time.Now(),
	}
	if err := b.SwapManager().AddSwap(info); err != nil {
		stream.Close()
		return nil, fmt.Errorf("bob: registering swap: %w", err)
	}

	ch := &Channel{Stream: stream}
	s := newSwapStateFromStart(b, started, ch, info)
	b.Net().TrackSwap(s)

	return s, nil
}

// ResumeSwap reconstructs a driver for a swap that was still in progress
// when swapd last shut down, the Bob-side counterpart of alice's own resume
// path (§4.E). The persisted state carries no live Channel: a resumed
// Negotiated or BtcLocked goes straight to SafelyAborted (see runFrom),
// and later states progress from chain and wallet observations, opening a
// one-shot substream of their own whenever they send a message.
func ResumeSwap(b backend.Backend, info *swap.Info) (net.SwapState, error) {
	encoded, err := b.StateStore().GetLatestState(info.ID)
	if err != nil {
		return nil, fmt.Errorf("bob: loading persisted state for %s: %w", info.ID, err)
	}

	last, err := UnmarshalState(encoded)
	if err != nil {
		return nil, fmt.Errorf("bob: decoding persisted state for %s: %w", info.ID, err)
	}

	s := newSwapStateFromOngoing(b, last, info)
	b.Net().TrackSwap(s)
	return s, nil
}

package net

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/net/message"
)

// SwapState is the in-progress protocol state machine driving one swap
// (protocol/alice, protocol/bob). The Host hands it every later message
// addressed to its swap ID once negotiation has produced one.
type SwapState interface {
	ID() types.SwapID
	HandleProtocolMessage(msg common.Message) error
	Exit() error
}

// MakerHandler answers the negotiation-opening message (§4.C step 1) for
// whichever party is currently advertising an offer. stream is retained by
// the returned SwapState, if any, to send its own follow-up message
// (Message1) back over the same substream.
type MakerHandler interface {
	GetOffers() []*types.Offer
	HandleInitiateMessage(peerID peer.ID, stream *Stream, req *message.SwapRequest) (s SwapState, resp common.Message, err error)
}

// RelayHandler answers a RelayBroadcastRequest from a peer without direct
// node access (relayer.Forward implements this).
type RelayHandler interface {
	HandleRelayBroadcastRequest(req *message.RelayBroadcastRequest) (*message.RelayBroadcastResponse, error)
}

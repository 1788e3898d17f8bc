package net

import "github.com/libp2p/go-libp2p/core/peer"

// EventType identifies the kind of substream completion event delivered on
// Host.Events(). It replaces original_source's four-way ProtocolOutEvent
// (InboundFinished/OutboundFinished/InboundFailed/OutboundFailed): Go's
// stream handlers run synchronously in their own goroutine, so there is no
// poll-based handler state machine to drive, only an outcome to report once
// that goroutine returns.
type EventType int

const (
	// InboundFinished fires when a substream we accepted completed
	// successfully.
	InboundFinished EventType = iota
	// OutboundFinished fires when a substream we dialed completed
	// successfully.
	OutboundFinished
	// InboundFailed fires when an accepted substream's read, dispatch, or
	// write failed.
	InboundFailed
	// OutboundFailed fires when dialing a peer, opening a substream, or the
	// exchange over it failed. This also covers what original_source left
	// as inject_dial_upgrade_error: TODO — a failed dial is just another
	// OutboundFailed event here, left for the caller to treat as swap-fatal.
	OutboundFailed
)

// String implements fmt.Stringer.
func (t EventType) String() string {
	switch t {
	case InboundFinished:
		return "InboundFinished"
	case OutboundFinished:
		return "OutboundFinished"
	case InboundFailed:
		return "InboundFailed"
	case OutboundFailed:
		return "OutboundFailed"
	default:
		return "Unknown"
	}
}

// Event reports one substream's outcome to whatever owns the Host.
type Event struct {
	Type  EventType
	Peer  peer.ID
	Value interface{}
	Err   error
}

// Package net is swapd's peer-to-peer transport (§4.D): a libp2p host that
// carries negotiation, key exchange, and the transfer/encrypted-signature
// attestations between the two parties to a swap, plus the relay protocol a
// node without direct chain access uses to get its transactions broadcast.
//
// original_source's libp2p-nmessage crate (src/lib.rs) builds this as a
// custom NetworkBehaviour/ProtocolsHandler pair because rust-libp2p's
// substream upgrades are driven by a poll() loop and futures have to be
// parked and resumed by hand. go-libp2p instead calls a stream handler in
// its own goroutine per accepted substream and lets NewStream block the
// calling goroutine until a substream opens, so the equivalent Go shape is
// much flatter: no handler state machine, no Poisoned transient state (see
// DESIGN.md "Open questions resolved") — just synchronous reads and writes
// over a *Stream, with outcomes reported on Events() for whatever owns the
// Host to observe uniformly regardless of direction.
package net

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/net/message"
)

var log = logging.Logger("net")

const (
	swapProtocolSuffix  = "/swap/1.0.0"
	transferProofSuffix = "/transfer_proof/1.0.0"
	encryptedSigSuffix  = "/encrypted_signature/1.0.0"
	relayProtocolSuffix = "/relay/1.0.0"
	dialTimeout         = 30 * time.Second
	eventBufferSize     = 16
)

var (
	errNoMakerHandler = errors.New("net: no maker handler set")
	errNoRelayHandler = errors.New("net: no relay handler set")
)

// Config holds the parameters needed to start a Host.
type Config struct {
	Ctx context.Context

	DataDir string
	// Port is the TCP port to listen on; 0 picks an OS-assigned port.
	Port uint16
	// KeyFile persists the host's libp2p identity key across restarts. If
	// empty, a fresh identity is generated each start.
	KeyFile string
	// Bootnodes are multiaddrs (including a /p2p/<peer id> component) to
	// connect to on startup.
	Bootnodes []string
	// ProtocolID is the prefix every swapd protocol ID is built from, e.g.
	// "/swapd" yields "/swapd/swap/1.0.0".
	ProtocolID string
	ListenIP   string
	// IsRelayer registers the relay broadcast protocol's inbound handler.
	IsRelayer bool
}

// Host is a libp2p peer that speaks swapd's protocols.
type Host struct {
	ctx    context.Context
	cancel context.CancelFunc

	h   host.Host
	cfg *Config

	swapProtoID     protocol.ID
	transferProofID protocol.ID
	encSigProtoID   protocol.ID
	relayProtoID    protocol.ID

	events chan Event

	mu        sync.Mutex
	maker     MakerHandler
	relay     RelayHandler
	swaps     map[types.SwapID]SwapState
	dialLocks map[peer.ID]*sync.Mutex
}

// NewHost creates and starts listening on a libp2p host per cfg, but does
// not yet register any protocol handlers — call SetHandlers for that.
func NewHost(cfg *Config) (*Host, error) {
	if err := common.MakeDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("net: creating data dir: %w", err)
	}

	priv, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("net: loading node key: %w", err)
	}

	listenAddr := fmt.Sprintf("/ip4/%s/tcp/%d", cfg.ListenIP, cfg.Port)
	libp2pHost, err := libp2p.New(
		libp2p.ListenAddrStrings(listenAddr),
		libp2p.Identity(priv),
		libp2p.NATPortMap(),
	)
	if err != nil {
		return nil, fmt.Errorf("net: creating libp2p host: %w", err)
	}

	ctx, cancel := context.WithCancel(cfg.Ctx)

	h := &Host{
		ctx:             ctx,
		cancel:          cancel,
		h:               libp2pHost,
		cfg:             cfg,
		swapProtoID:     protocol.ID(cfg.ProtocolID + swapProtocolSuffix),
		transferProofID: protocol.ID(cfg.ProtocolID + transferProofSuffix),
		encSigProtoID:   protocol.ID(cfg.ProtocolID + encryptedSigSuffix),
		relayProtoID:    protocol.ID(cfg.ProtocolID + relayProtocolSuffix),
		events:          make(chan Event, eventBufferSize),
		swaps:           make(map[types.SwapID]SwapState),
		dialLocks:       make(map[peer.ID]*sync.Mutex),
	}

	h.h.SetStreamHandler(h.swapProtoID, h.handleSwapStream)
	h.h.SetStreamHandler(h.transferProofID, h.handleOneShotSwapMessage)
	h.h.SetStreamHandler(h.encSigProtoID, h.handleOneShotSwapMessage)
	if cfg.IsRelayer {
		h.h.SetStreamHandler(h.relayProtoID, h.handleRelayStream)
	}

	if err := h.connectBootnodes(); err != nil {
		log.Warnf("failed to connect to some bootnodes: %s", err)
	}

	log.Infof("started host id=%s addrs=%v", h.h.ID(), h.h.Addrs())
	return h, nil
}

// SetHandlers registers the handlers a Host dispatches inbound messages to.
// Must be called once, before the remote side can initiate anything.
func (h *Host) SetHandlers(maker MakerHandler, relay RelayHandler) {
	h.mu.Lock()
	h.maker = maker
	h.relay = relay
	h.mu.Unlock()
}

// Stop shuts down the host and closes its event channel.
func (h *Host) Stop() error {
	h.cancel()
	err := h.h.Close()
	close(h.events)
	return err
}

// Events returns the channel substream outcomes are reported on.
func (h *Host) Events() <-chan Event {
	return h.events
}

// ID returns this host's peer ID.
func (h *Host) ID() peer.ID {
	return h.h.ID()
}

// Addrs returns this host's listen addresses.
func (h *Host) Addrs() []multiaddr.Multiaddr {
	return h.h.Addrs()
}

// AddPeerAddr records addrs as a way to reach peerID, so a later DialSwap or
// RequestRelayBroadcast can connect to it.
func (h *Host) AddPeerAddr(peerID peer.ID, addrs []multiaddr.Multiaddr) {
	h.h.Peerstore().AddAddrs(peerID, addrs, peerstore.TempAddrTTL)
}

// DialSwap opens the long-lived substream a taker uses to run negotiation
// and key exchange (SwapRequest through LockProofMessage) with peerID.
func (h *Host) DialSwap(ctx context.Context, peerID peer.ID) (*Stream, error) {
	s, err := h.openStream(ctx, peerID, h.swapProtoID)
	if err != nil {
		return nil, err
	}
	return &Stream{s: s}, nil
}

// SendTransferProof opens a fresh substream to tell peerID the XMR side of
// the swap has been locked.
func (h *Host) SendTransferProof(ctx context.Context, peerID peer.ID, msg *message.TransferProofMessage) error {
	return h.sendOneShot(ctx, peerID, h.transferProofID, msg)
}

// SendEncryptedSignature opens a fresh substream to deliver Message3, the
// adaptor-encrypted redeem signature.
func (h *Host) SendEncryptedSignature(ctx context.Context, peerID peer.ID, msg *message.EncryptedSignatureMessage) error {
	return h.sendOneShot(ctx, peerID, h.encSigProtoID, msg)
}

func (h *Host) sendOneShot(ctx context.Context, peerID peer.ID, protoID protocol.ID, msg common.Message) error {
	s, err := h.openStream(ctx, peerID, protoID)
	if err != nil {
		h.emit(Event{Type: OutboundFailed, Peer: peerID, Err: err})
		return err
	}
	stream := &Stream{s: s}
	defer stream.Close()

	if err := stream.Send(msg); err != nil {
		h.emit(Event{Type: OutboundFailed, Peer: peerID, Err: err})
		return err
	}

	h.emit(Event{Type: OutboundFinished, Peer: peerID, Value: msg})
	return nil
}

// RequestRelayBroadcast asks peerID, a discovered relayer, to validate and
// broadcast req.SignedTx, returning the accepted txid.
func (h *Host) RequestRelayBroadcast(ctx context.Context, peerID peer.ID, req *message.RelayBroadcastRequest) (*message.RelayBroadcastResponse, error) {
	s, err := h.openStream(ctx, peerID, h.relayProtoID)
	if err != nil {
		h.emit(Event{Type: OutboundFailed, Peer: peerID, Err: err})
		return nil, err
	}
	stream := &Stream{s: s}
	defer stream.Close()

	if err := stream.Send(req); err != nil {
		h.emit(Event{Type: OutboundFailed, Peer: peerID, Err: err})
		return nil, err
	}

	msg, err := stream.Receive()
	if err != nil {
		h.emit(Event{Type: OutboundFailed, Peer: peerID, Err: err})
		return nil, err
	}

	resp, ok := msg.(*message.RelayBroadcastResponse)
	if !ok {
		err := fmt.Errorf("net: expected RelayBroadcastResponse, got %s", message.TypeToString(msg.Type()))
		h.emit(Event{Type: OutboundFailed, Peer: peerID, Err: err})
		return nil, err
	}

	h.emit(Event{Type: OutboundFinished, Peer: peerID, Value: resp})
	return resp, nil
}

// TrackSwap registers s as the handler for further messages addressed to
// its swap ID.
func (h *Host) TrackSwap(s SwapState) {
	h.mu.Lock()
	h.swaps[s.ID()] = s
	h.mu.Unlock()
}

// ForgetSwap calls s.Exit() and stops dispatching messages to it.
func (h *Host) ForgetSwap(id types.SwapID) {
	h.mu.Lock()
	s, ok := h.swaps[id]
	delete(h.swaps, id)
	h.mu.Unlock()

	if !ok {
		return
	}
	if err := s.Exit(); err != nil {
		log.Warnf("swap %s exit: %s", id, err)
	}
}

func (h *Host) handleSwapStream(ns network.Stream) {
	peerID := ns.Conn().RemotePeer()
	stream := &Stream{s: ns}

	msg, err := stream.Receive()
	if err != nil {
		stream.Close()
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: err})
		return
	}

	req, ok := msg.(*message.SwapRequest)
	if !ok {
		stream.Close()
		h.emit(Event{Type: InboundFailed, Peer: peerID,
			Err: fmt.Errorf("net: expected SwapRequest, got %s", message.TypeToString(msg.Type()))})
		return
	}

	h.mu.Lock()
	maker := h.maker
	h.mu.Unlock()
	if maker == nil {
		stream.Close()
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: errNoMakerHandler})
		return
	}

	swapState, resp, err := maker.HandleInitiateMessage(peerID, stream, req)
	if err != nil {
		stream.Close()
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: err})
		return
	}

	if err := stream.Send(resp); err != nil {
		stream.Close()
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: err})
		return
	}

	if swapState == nil {
		// Declined: nothing further happens on this substream.
		stream.Close()
		h.emit(Event{Type: InboundFinished, Peer: peerID, Value: resp})
		return
	}

	h.TrackSwap(swapState)
	h.emit(Event{Type: InboundFinished, Peer: peerID, Value: resp})
	h.pumpSwapStream(peerID, stream, swapState)
}

// pumpSwapStream keeps reading Message0/Message2 off an already-negotiated
// swap substream and handing each to swapState, whose own code writes back
// over the same stream where the protocol calls for a reply.
func (h *Host) pumpSwapStream(peerID peer.ID, stream *Stream, swapState SwapState) {
	defer stream.Close()
	for {
		msg, err := stream.Receive()
		if err != nil {
			h.emit(Event{Type: InboundFailed, Peer: peerID, Value: swapState.ID(), Err: err})
			return
		}

		if err := swapState.HandleProtocolMessage(msg); err != nil {
			h.emit(Event{Type: InboundFailed, Peer: peerID, Value: swapState.ID(), Err: err})
			return
		}

		h.emit(Event{Type: InboundFinished, Peer: peerID, Value: msg})
	}
}

func (h *Host) handleOneShotSwapMessage(ns network.Stream) {
	defer ns.Close()
	peerID := ns.Conn().RemotePeer()
	stream := &Stream{s: ns}

	msg, err := stream.Receive()
	if err != nil {
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: err})
		return
	}

	swapID, ok := message.SwapIDOf(msg)
	if !ok {
		h.emit(Event{Type: InboundFailed, Peer: peerID,
			Err: fmt.Errorf("net: message type %s carries no swap id", message.TypeToString(msg.Type()))})
		return
	}

	h.mu.Lock()
	swapState, tracked := h.swaps[swapID]
	h.mu.Unlock()
	if !tracked {
		h.emit(Event{Type: InboundFailed, Peer: peerID, Value: swapID,
			Err: fmt.Errorf("net: no active swap %s", swapID)})
		return
	}

	if err := swapState.HandleProtocolMessage(msg); err != nil {
		h.emit(Event{Type: InboundFailed, Peer: peerID, Value: swapID, Err: err})
		return
	}

	h.emit(Event{Type: InboundFinished, Peer: peerID, Value: msg})
}

func (h *Host) handleRelayStream(ns network.Stream) {
	defer ns.Close()
	peerID := ns.Conn().RemotePeer()
	stream := &Stream{s: ns}

	msg, err := stream.Receive()
	if err != nil {
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: err})
		return
	}

	req, ok := msg.(*message.RelayBroadcastRequest)
	if !ok {
		h.emit(Event{Type: InboundFailed, Peer: peerID,
			Err: fmt.Errorf("net: expected RelayBroadcastRequest, got %s", message.TypeToString(msg.Type()))})
		return
	}

	h.mu.Lock()
	relay := h.relay
	h.mu.Unlock()
	if relay == nil {
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: errNoRelayHandler})
		return
	}

	resp, err := relay.HandleRelayBroadcastRequest(req)
	if err != nil {
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: err})
		return
	}

	if err := stream.Send(resp); err != nil {
		h.emit(Event{Type: InboundFailed, Peer: peerID, Err: err})
		return
	}

	h.emit(Event{Type: InboundFinished, Peer: peerID, Value: resp})
}

// openStream connects to peerID if not already connected, then opens a
// substream on protoID. Dial attempts to the same peer are serialized by a
// per-peer sync.Mutex, which blocks each caller until the previous dial is
// done. The mutex does not hand the lock to waiting callers in arrival
// order, so concurrent requests to one peer are not guaranteed to go out
// FIFO.
func (h *Host) openStream(ctx context.Context, peerID peer.ID, protoID protocol.ID) (network.Stream, error) {
	mu := h.peerDialLock(peerID)
	mu.Lock()
	defer mu.Unlock()

	if h.h.Network().Connectedness(peerID) != network.Connected {
		addrInfo, err := h.resolvePeer(peerID)
		if err != nil {
			return nil, fmt.Errorf("net: resolving peer %s: %w", peerID, err)
		}
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		err = h.h.Connect(dialCtx, *addrInfo)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("net: dialing peer %s: %w", peerID, err)
		}
	}

	s, err := h.h.NewStream(ctx, peerID, protoID)
	if err != nil {
		return nil, fmt.Errorf("net: opening %s stream to %s: %w", protoID, peerID, err)
	}
	return s, nil
}

func (h *Host) resolvePeer(peerID peer.ID) (*peer.AddrInfo, error) {
	addrs := h.h.Peerstore().Addrs(peerID)
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no known address for peer %s", peerID)
	}
	return &peer.AddrInfo{ID: peerID, Addrs: addrs}, nil
}

func (h *Host) peerDialLock(peerID peer.ID) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	mu, ok := h.dialLocks[peerID]
	if !ok {
		mu = &sync.Mutex{}
		h.dialLocks[peerID] = mu
	}
	return mu
}

func (h *Host) connectBootnodes() error {
	var errs []error
	for _, addr := range h.cfg.Bootnodes {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		addrInfo, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		h.h.Peerstore().AddAddrs(addrInfo.ID, addrInfo.Addrs, peerstore.PermanentAddrTTL)

		ctx, cancel := context.WithTimeout(h.ctx, dialTimeout)
		err = h.h.Connect(ctx, *addrInfo)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("connecting to bootnode %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Host) emit(e Event) {
	select {
	case h.events <- e:
	case <-h.ctx.Done():
	}
}

func loadOrCreateKey(keyFile string) (p2pcrypto.PrivKey, error) {
	if keyFile == "" {
		priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
		return priv, err
	}

	data, err := os.ReadFile(keyFile)
	if err == nil {
		return p2pcrypto.UnmarshalPrivateKey(data)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	data, err = p2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, err
	}

	const ownerOnly = 0600
	if err := os.WriteFile(keyFile, data, ownerOnly); err != nil {
		return nil, err
	}

	return priv, nil
}

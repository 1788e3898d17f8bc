package net

import (
	"context"
	"path"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/net/message"
)

func init() {
	_ = logging.SetLogLevel("net", "debug")
}

const testProtocolID = "/swapd-test"

type mockMakerHandler struct {
	accept    bool
	swapState *mockSwapState
}

func (*mockMakerHandler) GetOffers() []*types.Offer {
	return nil
}

func (h *mockMakerHandler) HandleInitiateMessage(
	_ peer.ID,
	_ *Stream,
	req *message.SwapRequest,
) (SwapState, common.Message, error) {
	if !h.accept {
		return nil, &message.SwapResponse{Accepted: false}, nil
	}

	id, err := types.NewSwapID()
	if err != nil {
		return nil, nil, err
	}

	resp := &message.SwapResponse{
		Accepted:  true,
		SwapID:    id,
		BTCAmount: req.BTCAmount,
		XMRAmount: req.XMRAmount,
	}
	h.swapState = &mockSwapState{id: id}
	return h.swapState, resp, nil
}

type mockSwapState struct {
	id       types.SwapID
	received []common.Message
}

func (s *mockSwapState) ID() types.SwapID {
	return s.id
}

func (s *mockSwapState) HandleProtocolMessage(msg common.Message) error {
	s.received = append(s.received, msg)
	return nil
}

func (*mockSwapState) Exit() error {
	return nil
}

type mockRelayHandler struct{}

func (*mockRelayHandler) HandleRelayBroadcastRequest(_ *message.RelayBroadcastRequest) (*message.RelayBroadcastResponse, error) {
	return &message.RelayBroadcastResponse{TxID: make([]byte, 32)}, nil
}

func basicTestConfig(t *testing.T) *Config {
	// t.TempDir() is unique on every call. Don't reuse this config with multiple hosts.
	tmpDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	return &Config{
		Ctx:        ctx,
		DataDir:    tmpDir,
		Port:       0, // OS randomized libp2p port
		KeyFile:    path.Join(tmpDir, "node.key"),
		Bootnodes:  nil,
		ProtocolID: testProtocolID,
		ListenIP:   "127.0.0.1",
		IsRelayer:  false,
	}
}

func newHost(t *testing.T, cfg *Config, maker MakerHandler, relay RelayHandler) *Host {
	h, err := NewHost(cfg)
	require.NoError(t, err)
	h.SetHandlers(maker, relay)
	t.Cleanup(func() {
		require.NoError(t, h.Stop())
	})
	return h
}

func TestHost_SwapRequestAccepted(t *testing.T) {
	maker := &mockMakerHandler{accept: true}
	makerHost := newHost(t, basicTestConfig(t), maker, nil)
	takerHost := newHost(t, basicTestConfig(t), &mockMakerHandler{}, nil)

	takerHost.AddPeerAddr(makerHost.ID(), makerHost.Addrs())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := takerHost.DialSwap(ctx, makerHost.ID())
	require.NoError(t, err)
	defer stream.Close()

	req := &message.SwapRequest{
		BTCAmount: apd.New(1, -1),
		XMRAmount: apd.New(15, 0),
	}
	require.NoError(t, stream.Send(req))

	respMsg, err := stream.Receive()
	require.NoError(t, err)

	resp, ok := respMsg.(*message.SwapResponse)
	require.True(t, ok)
	require.True(t, resp.Accepted)
	require.NotEqual(t, types.EmptySwapID, resp.SwapID)

	require.NotNil(t, maker.swapState)
	require.Equal(t, resp.SwapID, maker.swapState.ID())
}

func TestHost_SwapRequestDeclined(t *testing.T) {
	maker := &mockMakerHandler{accept: false}
	makerHost := newHost(t, basicTestConfig(t), maker, nil)
	takerHost := newHost(t, basicTestConfig(t), &mockMakerHandler{}, nil)

	takerHost.AddPeerAddr(makerHost.ID(), makerHost.Addrs())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := takerHost.DialSwap(ctx, makerHost.ID())
	require.NoError(t, err)
	defer stream.Close()

	req := &message.SwapRequest{
		BTCAmount: apd.New(1, -1),
		XMRAmount: apd.New(15, 0),
	}
	require.NoError(t, stream.Send(req))

	respMsg, err := stream.Receive()
	require.NoError(t, err)

	resp, ok := respMsg.(*message.SwapResponse)
	require.True(t, ok)
	require.False(t, resp.Accepted)
	require.Nil(t, maker.swapState)
}

func TestHost_RelayBroadcast(t *testing.T) {
	relayCfg := basicTestConfig(t)
	relayCfg.IsRelayer = true
	relayHost := newHost(t, relayCfg, &mockMakerHandler{}, &mockRelayHandler{})
	requesterHost := newHost(t, basicTestConfig(t), &mockMakerHandler{}, nil)

	requesterHost.AddPeerAddr(relayHost.ID(), relayHost.Addrs())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := &message.RelayBroadcastRequest{
		SignedTx:         make([]byte, 64),
		ExpectedOutpoint: make([]byte, 36),
	}
	resp, err := requesterHost.RequestRelayBroadcast(ctx, relayHost.ID(), req)
	require.NoError(t, err)
	require.Len(t, resp.TxID, 32)
}

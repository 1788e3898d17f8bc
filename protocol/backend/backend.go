// Package backend bundles everything a role's swap_state needs to drive a
// swap end-to-end — wallet adapters, the peer transport, durable state, and
// the fixed swap parameters — behind one interface, the way the teacher's
// protocol/xmrmaker and protocol/xmrtaker packages each embed a
// backend.Backend instead of taking every dependency as a loose parameter.
package backend

import (
	"context"

	"github.com/xmrbtcswap/swapd/bitcoin"
	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/monero"
	"github.com/xmrbtcswap/swapd/net"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

// StateStore is the slice of db.Store that a role's resumable State needs:
// persist/reload the latest CBOR-encoded state blob for a swap (§4.G). It is
// deliberately narrower than swap.Database, which persists the role-agnostic
// swap.Info instead.
type StateStore interface {
	PutLatestState(id types.SwapID, encoded []byte) error
	GetLatestState(id types.SwapID) ([]byte, error)
}

// Backend is everything protocol/alice and protocol/bob need to drive a
// swap: wallet access, the peer transport, the swap manager and state
// store, and the fixed parameters this daemon instance runs with.
type Backend interface {
	Ctx() context.Context
	Env() common.Environment
	SwapConfig() *common.Config

	BTCWallet() bitcoin.Wallet
	XMRClient() monero.WalletClient

	Net() *net.Host

	SwapManager() swap.Manager
	StateStore() StateStore
}

type backend struct {
	ctx context.Context

	env     common.Environment
	swapCfg *common.Config

	btcWallet bitcoin.Wallet
	xmrClient monero.WalletClient

	host *net.Host

	swapManager swap.Manager
	stateStore  StateStore
}

// New bundles the given dependencies into a Backend.
func New(
	ctx context.Context,
	env common.Environment,
	swapCfg *common.Config,
	btcWallet bitcoin.Wallet,
	xmrClient monero.WalletClient,
	host *net.Host,
	swapManager swap.Manager,
	stateStore StateStore,
) Backend {
	return &backend{
		ctx:         ctx,
		env:         env,
		swapCfg:     swapCfg,
		btcWallet:   btcWallet,
		xmrClient:   xmrClient,
		host:        host,
		swapManager: swapManager,
		stateStore:  stateStore,
	}
}

func (b *backend) Ctx() context.Context           { return b.ctx }
func (b *backend) Env() common.Environment        { return b.env }
func (b *backend) SwapConfig() *common.Config     { return b.swapCfg }
func (b *backend) BTCWallet() bitcoin.Wallet      { return b.btcWallet }
func (b *backend) XMRClient() monero.WalletClient { return b.xmrClient }
func (b *backend) Net() *net.Host                 { return b.host }
func (b *backend) SwapManager() swap.Manager      { return b.swapManager }
func (b *backend) StateStore() StateStore         { return b.stateStore }

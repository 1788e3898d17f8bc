// Package main provides swapd, the daemon that drives one BTC<->XMR atomic
// swap per invocation: start-alice offers XMR for BTC and waits for a
// counterparty, start-bob takes an offer by dialing a known peer directly,
// and resume continues a swap that was still in flight when a previous
// invocation exited. It stays a thin wiring layer over protocol/alice,
// protocol/bob, and rpc, the way cmd/swapcli stays thin over the teacher's
// own RPC client.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/cockroachdb/apd/v3"
	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/urfave/cli/v2"

	"github.com/xmrbtcswap/swapd/bitcoin"
	"github.com/xmrbtcswap/swapd/coins"
	"github.com/xmrbtcswap/swapd/common"
	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/db"
	"github.com/xmrbtcswap/swapd/monero"
	"github.com/xmrbtcswap/swapd/net"
	"github.com/xmrbtcswap/swapd/protocol/alice"
	"github.com/xmrbtcswap/swapd/protocol/backend"
	"github.com/xmrbtcswap/swapd/protocol/bob"
	"github.com/xmrbtcswap/swapd/protocol/swap"
	swaprpc "github.com/xmrbtcswap/swapd/rpc"
)

const (
	flagDataDir       = "data-dir"
	flagEnv           = "env"
	flagLogLevel      = "log-level"
	flagLibp2pPort    = "libp2p-port"
	flagLibp2pKeyFile = "libp2p-key-file"
	flagBootnodes     = "bootnode"
	flagRPCAddress    = "rpc-address"

	flagBitcoinEndpoint   = "bitcoin-rpc-endpoint"
	flagBitcoinUser       = "bitcoin-rpc-user"
	flagBitcoinPassword   = "bitcoin-rpc-password"
	flagBitcoinDisableTLS = "bitcoin-rpc-disable-tls"

	flagMoneroWalletRPCEndpoint = "monero-wallet-rpc-endpoint"

	flagMinXMRAmount = "min-xmr-amount"
	flagMaxXMRAmount = "max-xmr-amount"
	flagExchangeRate = "exchange-rate"
	flagPeerID       = "peer-id"
	flagPeerAddr     = "peer-addr"
	flagBTCAmount    = "btc-amount"
	flagXMRAmount    = "xmr-amount"

	pollInterval = 2 * time.Second
)

var log = logging.Logger("swapd")

// exitAborted and exitCryptoViolation are the CLI's non-success exit codes:
// 0 is reserved for a swap completing successfully.
const (
	exitSuccess = iota
	exitAborted
	exitCryptoViolation
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Errorf("%s", err)
		os.Exit(exitAborted)
	}
}

func newApp() *cli.App {
	globalFlags := []cli.Flag{
		&cli.StringFlag{Name: flagDataDir, Value: "./swapd-data", Usage: "directory for the peer identity, swap database, and wallet files"},
		&cli.StringFlag{Name: flagEnv, Value: "dev", Usage: "one of mainnet, stagenet, dev"},
		&cli.StringFlag{Name: flagLogLevel, Value: "info", Usage: "log level for every swapd subsystem"},
		&cli.Uint64Flag{Name: flagLibp2pPort, Value: 0, Usage: "libp2p listen port, 0 for an OS-assigned port"},
		&cli.StringFlag{Name: flagLibp2pKeyFile, Value: "", Usage: "file persisting the libp2p identity key across restarts"},
		&cli.StringSliceFlag{Name: flagBootnodes, Usage: "multiaddr of a peer to connect to on startup"},
		&cli.StringFlag{Name: flagRPCAddress, Value: "127.0.0.1:5000", Usage: "address the local control-plane RPC server listens on"},
		&cli.StringFlag{Name: flagBitcoinEndpoint, Value: "127.0.0.1:18443", Usage: "bitcoind JSON-RPC endpoint"},
		&cli.StringFlag{Name: flagBitcoinUser, Usage: "bitcoind RPC username"},
		&cli.StringFlag{Name: flagBitcoinPassword, Usage: "bitcoind RPC password"},
		&cli.BoolFlag{Name: flagBitcoinDisableTLS, Value: true, Usage: "connect to bitcoind over plain HTTP"},
		&cli.StringFlag{Name: flagMoneroWalletRPCEndpoint, Value: "http://127.0.0.1:18083/json_rpc", Usage: "monero-wallet-rpc endpoint"},
	}

	return &cli.App{
		Name:  "swapd",
		Usage: "drive one BTC<->XMR atomic swap",
		Commands: []*cli.Command{
			{
				Name:  "start-alice",
				Usage: "offer XMR for BTC and wait for a counterparty to take it",
				Flags: append(globalFlags,
					&cli.StringFlag{Name: flagMinXMRAmount, Required: true, Usage: "minimum XMR amount to offer"},
					&cli.StringFlag{Name: flagMaxXMRAmount, Required: true, Usage: "maximum XMR amount to offer"},
					&cli.StringFlag{Name: flagExchangeRate, Required: true, Usage: "BTC per XMR, e.g. 0.006"},
				),
				Action: runStartAlice,
			},
			{
				Name:  "start-bob",
				Usage: "offer BTC for XMR by dialing a known peer directly",
				Flags: append(globalFlags,
					&cli.StringFlag{Name: flagPeerID, Required: true, Usage: "counterparty's libp2p peer ID"},
					&cli.StringFlag{Name: flagPeerAddr, Required: true, Usage: "counterparty's multiaddr, without a /p2p component"},
					&cli.StringFlag{Name: flagBTCAmount, Required: true, Usage: "BTC amount to offer"},
					&cli.StringFlag{Name: flagXMRAmount, Required: true, Usage: "XMR amount requested in exchange"},
				),
				Action: runStartBob,
			},
			{
				Name:      "resume",
				Usage:     "continue a swap that was still in flight when swapd last exited",
				ArgsUsage: "<swap-id>",
				Flags:     globalFlags,
				Action:    runResume,
			},
		},
	}
}

// daemon bundles everything every subcommand needs: the wallets, the peer
// host, the durable store, and the backend that wraps them for
// protocol/alice and protocol/bob, plus the control-plane RPC server
// running alongside whichever swap this invocation drives.
type daemon struct {
	ctx    context.Context
	cancel context.CancelFunc

	backend backend.Backend
	host    *net.Host
	manager swap.Manager
	store   *db.Store

	rpcServer *swaprpc.Server
}

func newDaemon(c *cli.Context) (*daemon, error) {
	if err := logging.SetLogLevel("*", c.String(flagLogLevel)); err != nil {
		return nil, fmt.Errorf("swapd: setting log level: %w", err)
	}

	env, err := parseEnv(c.String(flagEnv))
	if err != nil {
		return nil, err
	}
	swapCfg := common.ConfigDefaultsForEnv(env)

	dataDir := c.String(flagDataDir)
	if err := common.MakeDir(dataDir); err != nil {
		return nil, fmt.Errorf("swapd: creating data dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	store, err := db.NewStore(dataDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("swapd: opening store: %w", err)
	}

	manager, err := swap.NewManager(store)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("swapd: loading swap manager: %w", err)
	}

	btcWallet, err := bitcoin.NewRPCWallet(bitcoin.RPCConfig{
		Endpoint:    c.String(flagBitcoinEndpoint),
		User:        c.String(flagBitcoinUser),
		Password:    c.String(flagBitcoinPassword),
		ChainParams: chainParamsForEnv(env),
		DisableTLS:  c.Bool(flagBitcoinDisableTLS),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("swapd: connecting to bitcoind: %w", err)
	}

	xmrClient := monero.NewWalletClient(c.String(flagMoneroWalletRPCEndpoint))

	host, err := net.NewHost(&net.Config{
		Ctx:        ctx,
		DataDir:    dataDir,
		Port:       uint16(c.Uint64(flagLibp2pPort)),
		KeyFile:    c.String(flagLibp2pKeyFile),
		Bootnodes:  c.StringSlice(flagBootnodes),
		ProtocolID: "/swapd",
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("swapd: starting libp2p host: %w", err)
	}

	b := backend.New(ctx, env, swapCfg, btcWallet, xmrClient, host, manager, store)

	rpcServer, err := swaprpc.NewServer(&swaprpc.Config{
		Ctx:     ctx,
		Address: c.String(flagRPCAddress),
		Host:    host,
		Manager: manager,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("swapd: starting rpc server: %w", err)
	}
	go func() {
		if err := rpcServer.Start(); err != nil && ctx.Err() == nil {
			log.Warnf("rpc server exited: %s", err)
		}
	}()

	return &daemon{
		ctx:       ctx,
		cancel:    cancel,
		backend:   b,
		host:      host,
		manager:   manager,
		store:     store,
		rpcServer: rpcServer,
	}, nil
}

func (d *daemon) close() {
	_ = d.rpcServer.Stop()
	_ = d.host.Stop()
	_ = d.store.Close()
	d.cancel()
}

func parseEnv(s string) (common.Environment, error) {
	switch s {
	case "mainnet":
		return common.Mainnet, nil
	case "stagenet":
		return common.Stagenet, nil
	case "dev", "development":
		return common.Development, nil
	default:
		return 0, fmt.Errorf("swapd: unknown environment %q", s)
	}
}

func chainParamsForEnv(env common.Environment) *chaincfg.Params {
	switch env {
	case common.Mainnet:
		return &chaincfg.MainNetParams
	case common.Stagenet:
		return &chaincfg.TestNet3Params
	default:
		return &chaincfg.RegressionNetParams
	}
}

func runStartAlice(c *cli.Context) error {
	d, err := newDaemon(c)
	if err != nil {
		return err
	}
	defer d.close()

	minXMR, _, err := apd.NewFromString(c.String(flagMinXMRAmount))
	if err != nil {
		return fmt.Errorf("swapd: parsing %s: %w", flagMinXMRAmount, err)
	}
	maxXMR, _, err := apd.NewFromString(c.String(flagMaxXMRAmount))
	if err != nil {
		return fmt.Errorf("swapd: parsing %s: %w", flagMaxXMRAmount, err)
	}
	rate, _, err := apd.NewFromString(c.String(flagExchangeRate))
	if err != nil {
		return fmt.Errorf("swapd: parsing %s: %w", flagExchangeRate, err)
	}

	offers := alice.NewOfferManager()
	offer := types.NewOffer(minXMR, maxXMR, coins.NewExchangeRate(rate))
	offers.Add(offer)

	handler := alice.NewHandler(d.backend, offers)
	d.host.SetHandlers(handler, nil)

	log.Infof("listening as %s for an offer of %s-%s XMR at %s BTC/XMR", d.host.ID(), minXMR, maxXMR, rate)

	id, err := awaitNextSwap(d, nil)
	if err != nil {
		return err
	}
	return waitAndExit(d, id)
}

func runStartBob(c *cli.Context) error {
	d, err := newDaemon(c)
	if err != nil {
		return err
	}
	defer d.close()

	peerID, err := peer.Decode(c.String(flagPeerID))
	if err != nil {
		return fmt.Errorf("swapd: parsing %s: %w", flagPeerID, err)
	}
	addr, err := multiaddr.NewMultiaddr(c.String(flagPeerAddr))
	if err != nil {
		return fmt.Errorf("swapd: parsing %s: %w", flagPeerAddr, err)
	}
	d.host.AddPeerAddr(peerID, []multiaddr.Multiaddr{addr})

	btcAmount, _, err := apd.NewFromString(c.String(flagBTCAmount))
	if err != nil {
		return fmt.Errorf("swapd: parsing %s: %w", flagBTCAmount, err)
	}
	xmrAmount, _, err := apd.NewFromString(c.String(flagXMRAmount))
	if err != nil {
		return fmt.Errorf("swapd: parsing %s: %w", flagXMRAmount, err)
	}

	s, err := bob.RequestSwap(d.ctx, d.backend, peerID, btcAmount, xmrAmount)
	if err != nil {
		return fmt.Errorf("swapd: requesting swap: %w", err)
	}

	return waitAndExit(d, s.ID())
}

func runResume(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("swapd: resume takes exactly one <swap-id> argument")
	}

	d, err := newDaemon(c)
	if err != nil {
		return err
	}
	defer d.close()

	id, err := types.SwapIDFromString(c.Args().First())
	if err != nil {
		return fmt.Errorf("swapd: parsing swap id: %w", err)
	}

	info, err := d.manager.GetOngoingSwap(id)
	if err != nil {
		return fmt.Errorf("swapd: looking up swap %s: %w", id, err)
	}

	var s net.SwapState
	switch info.Role {
	case swap.AliceRole:
		s, err = alice.ResumeSwap(d.backend, &info)
	case swap.BobRole:
		s, err = bob.ResumeSwap(d.backend, &info)
	default:
		return fmt.Errorf("swapd: unknown role %s for swap %s", info.Role, id)
	}
	if err != nil {
		return fmt.Errorf("swapd: resuming swap: %w", err)
	}

	return waitAndExit(d, s.ID())
}

// awaitNextSwap blocks until a new ongoing swap (one not already in
// existingIDs) appears, the only way start-alice's blocking handler can
// discover the swap its own Handler accepted from another goroutine.
func awaitNextSwap(d *daemon, existingIDs map[types.SwapID]struct{}) (types.SwapID, error) {
	if existingIDs == nil {
		existingIDs = make(map[types.SwapID]struct{})
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return types.SwapID{}, d.ctx.Err()
		case <-ticker.C:
			swaps, err := d.manager.GetOngoingSwaps()
			if err != nil {
				return types.SwapID{}, err
			}
			for _, info := range swaps {
				if _, ok := existingIDs[info.ID]; !ok {
					return info.ID, nil
				}
			}
		}
	}
}

// waitAndExit polls until id is no longer ongoing, then maps its final
// status to one of §6's exit codes.
func waitAndExit(d *daemon, id types.SwapID) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return d.ctx.Err()
		case <-ticker.C:
			if d.manager.HasOngoingSwap(id) {
				continue
			}
			info, err := d.manager.GetPastSwap(id)
			if err != nil {
				return fmt.Errorf("swapd: looking up finished swap %s: %w", id, err)
			}
			return exitForStatus(info.Status)
		}
	}
}

func exitForStatus(status types.Status) error {
	switch status {
	case types.CompletedSuccess:
		os.Exit(exitSuccess)
	case types.CompletedRefund:
		os.Exit(exitCryptoViolation)
	case types.CompletedAbort:
		os.Exit(exitAborted)
	}
	return fmt.Errorf("swapd: swap finished in unexpected status %s", status)
}

// Package rpc provides the local JSON-RPC control-plane server swapd's CLI
// starts alongside a running swap, so another process on the same host can
// query progress (swap.ongoing, swap.get) or ask the daemon to stop
// (daemon.stop) without the CLI itself carrying any of that logic.
package rpc

import (
	"context"
	"errors"
	"fmt"
	stdnet "net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	gorillarpc "github.com/gorilla/rpc/v2"
	logging "github.com/ipfs/go-log"

	"github.com/xmrbtcswap/swapd/net"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

const (
	// DaemonNamespace answers process lifecycle requests.
	DaemonNamespace = "daemon"
	// NetNamespace answers libp2p identity/address requests.
	NetNamespace = "net"
	// SwapNamespace answers swap-history/status requests.
	SwapNamespace = "swap"
)

var log = logging.Logger("rpc")

// Server is the HTTP server backing the JSON-RPC control plane.
type Server struct {
	ctx        context.Context
	listener   stdnet.Listener
	httpServer *http.Server
}

// Config configures a control-plane Server. Host and Manager are always
// required; Namespaces restricts which of daemon/net/swap are registered
// (defaults to all three if empty).
type Config struct {
	Ctx        context.Context
	Address    string // "IP:port"
	Host       *net.Host
	Manager    swap.Manager
	Namespaces map[string]struct{}
}

// AllNamespaces returns every RPC namespace this daemon exposes.
func AllNamespaces() map[string]struct{} {
	return map[string]struct{}{
		DaemonNamespace: {},
		NetNamespace:    {},
		SwapNamespace:   {},
	}
}

// NewServer builds a Server per cfg but does not yet listen; call Start.
func NewServer(cfg *Config) (*Server, error) {
	namespaces := cfg.Namespaces
	if len(namespaces) == 0 {
		namespaces = AllNamespaces()
	}

	rpcServer := gorillarpc.NewServer()
	rpcServer.RegisterCodec(NewCodec(), "application/json")

	serverCtx, serverCancel := context.WithCancel(cfg.Ctx)

	var err error
	for ns := range namespaces {
		switch ns {
		case DaemonNamespace:
			err = rpcServer.RegisterService(NewDaemonService(serverCancel), DaemonNamespace)
		case NetNamespace:
			err = rpcServer.RegisterService(NewNetService(cfg.Host), NetNamespace)
		case SwapNamespace:
			err = rpcServer.RegisterService(NewSwapService(cfg.Manager), SwapNamespace)
		default:
			err = fmt.Errorf("rpc: unknown namespace %s", ns)
		}
		if err != nil {
			serverCancel()
			return nil, err
		}
	}

	lc := stdnet.ListenConfig{}
	ln, err := lc.Listen(serverCtx, "tcp", cfg.Address)
	if err != nil {
		serverCancel()
		return nil, err
	}

	r := mux.NewRouter()
	r.Handle("/", rpcServer)

	headersOk := handlers.AllowedHeaders([]string{"content-type"})
	methodsOk := handlers.AllowedMethods([]string{"POST", "OPTIONS"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	httpServer := &http.Server{
		Addr:              ln.Addr().String(),
		ReadHeaderTimeout: time.Second,
		Handler:           handlers.CORS(headersOk, methodsOk, originsOk)(r),
		BaseContext: func(stdnet.Listener) context.Context {
			return serverCtx
		},
	}

	return &Server{
		ctx:        serverCtx,
		listener:   ln,
		httpServer: httpServer,
	}, nil
}

// HttpURL returns the URL this server answers JSON-RPC requests on. //nolint:revive
func (s *Server) HttpURL() string {
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}

// Start serves until its context is cancelled or the listener fails,
// gracefully shutting down in either case, mirroring the teacher's own
// select-on-ctx-vs-serve-error shape.
func (s *Server) Start() error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	log.Infof("starting rpc server on %s", s.HttpURL())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-s.ctx.Done():
		if err := s.httpServer.Shutdown(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("rpc server shutdown: %s", err)
		}
		return s.ctx.Err()
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("rpc server failed: %s", err)
		} else {
			log.Info("rpc server shut down")
		}
		return err
	}
}

// Stop shuts the server down, letting already-open connections drain.
func (s *Server) Stop() error {
	return s.httpServer.Shutdown(s.ctx)
}

package rpc

import (
	"context"
	"net/http"
)

// DaemonService answers control-plane requests about the daemon process
// itself, the "daemon" namespace of bingcicle's rpc/server.go carried over
// unchanged in shape (a single Stop method, cancelling the server's own
// context rather than the protocol backend's).
type DaemonService struct {
	cancel context.CancelFunc
}

// NewDaemonService returns a DaemonService that cancels cancel on Stop.
func NewDaemonService(cancel context.CancelFunc) *DaemonService {
	return &DaemonService{cancel: cancel}
}

// StopRequest is the (empty) request for DaemonService.Stop.
type StopRequest struct{}

// StopResponse is the (empty) response for DaemonService.Stop.
type StopResponse struct{}

// Stop shuts down the RPC server. It does not stop any swap already in
// flight; that is driven by the process's own subcommand, not by RPC.
func (s *DaemonService) Stop(_ *http.Request, _ *StopRequest, _ *StopResponse) error {
	s.cancel()
	return nil
}

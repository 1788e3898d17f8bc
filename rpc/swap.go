package rpc

import (
	"fmt"
	"net/http"

	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

// SwapService answers queries about swaps this daemon is driving or has
// driven, the "swap" namespace of bingcicle's rpc/server.go narrowed to the
// query-only surface: swapd's CLI subcommands (not RPC calls) start and
// resume swaps, so there is no InitiateSwap/MakeOffer/TakeOffer method
// here, unlike XMRTaker/XMRMaker's RPC-driven counterparts.
type SwapService struct {
	manager swap.Manager
}

// NewSwapService returns a SwapService backed by manager.
func NewSwapService(manager swap.Manager) *SwapService {
	return &SwapService{manager: manager}
}

// OngoingRequest is the (empty) request for SwapService.Ongoing.
type OngoingRequest struct{}

// OngoingResponse lists every swap this daemon is currently driving.
type OngoingResponse struct {
	Swaps []*swap.Info `json:"swaps"`
}

// Ongoing returns every swap currently in flight.
func (s *SwapService) Ongoing(_ *http.Request, _ *OngoingRequest, resp *OngoingResponse) error {
	swaps, err := s.manager.GetOngoingSwaps()
	if err != nil {
		return err
	}
	resp.Swaps = swaps
	return nil
}

// GetRequest identifies a single swap by its hex-encoded ID, matching
// types.SwapID.String/SwapIDFromString.
type GetRequest struct {
	ID string `json:"id"`
}

// GetResponse is a single swap's record.
type GetResponse struct {
	Info *swap.Info `json:"info"`
}

// Get returns the named swap's Info, whether it is ongoing or completed.
func (s *SwapService) Get(_ *http.Request, req *GetRequest, resp *GetResponse) error {
	id, err := types.SwapIDFromString(req.ID)
	if err != nil {
		return fmt.Errorf("rpc: parsing swap id %q: %w", req.ID, err)
	}

	if s.manager.HasOngoingSwap(id) {
		info, err := s.manager.GetOngoingSwap(id)
		if err != nil {
			return err
		}
		resp.Info = &info
		return nil
	}

	info, err := s.manager.GetPastSwap(id)
	if err != nil {
		return err
	}
	resp.Info = info
	return nil
}

// PastIDsRequest is the (empty) request for SwapService.PastIDs.
type PastIDsRequest struct{}

// PastIDsResponse lists every completed swap's ID.
type PastIDsResponse struct {
	IDs []string `json:"ids"`
}

// PastIDs returns the hex-encoded IDs of every completed swap.
func (s *SwapService) PastIDs(_ *http.Request, _ *PastIDsRequest, resp *PastIDsResponse) error {
	ids, err := s.manager.GetPastIDs()
	if err != nil {
		return err
	}
	resp.IDs = make([]string, len(ids))
	for i, id := range ids {
		resp.IDs[i] = id.String()
	}
	return nil
}

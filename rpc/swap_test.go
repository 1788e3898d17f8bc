package rpc

import (
	"errors"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/require"

	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

var errTestNoSwap = errors.New("rpc test: no swap with given id")

// memDB is a minimal in-process swap.Database, enough to drive
// swap.NewManager for these tests without a real chaindb instance.
type memDB struct {
	swaps map[types.SwapID]*swap.Info
}

func newMemDB() *memDB {
	return &memDB{swaps: make(map[types.SwapID]*swap.Info)}
}

func (d *memDB) PutSwap(info *swap.Info) error {
	d.swaps[info.ID] = info
	return nil
}

func (d *memDB) GetSwap(id types.SwapID) (*swap.Info, error) {
	info, ok := d.swaps[id]
	if !ok {
		return nil, errTestNoSwap
	}
	return info, nil
}

func (d *memDB) GetAllSwaps() ([]*swap.Info, error) {
	out := make([]*swap.Info, 0, len(d.swaps))
	for _, info := range d.swaps {
		out = append(out, info)
	}
	return out, nil
}

func testManager(t *testing.T) swap.Manager {
	t.Helper()
	m, err := swap.NewManager(newMemDB())
	require.NoError(t, err)
	return m
}

func testInfo(id types.SwapID, status types.Status) *swap.Info {
	return &swap.Info{
		ID:        id,
		Role:      swap.BobRole,
		PeerID:    "test-peer",
		BTCAmount: apd.New(1, -3),
		XMRAmount: apd.New(2, -2),
		Status:    status,
		StartTime: time.Unix(0, 0),
	}
}

func TestSwapService_Get_Ongoing(t *testing.T) {
	m := testManager(t)
	id := types.SwapID{1, 2, 3}
	require.NoError(t, m.AddSwap(testInfo(id, types.ExpectingKeys)))

	svc := NewSwapService(m)
	var resp GetResponse
	require.NoError(t, svc.Get(nil, &GetRequest{ID: id.String()}, &resp))
	require.Equal(t, id, resp.Info.ID)
	require.Equal(t, types.ExpectingKeys, resp.Info.Status)
}

func TestSwapService_Get_Past(t *testing.T) {
	m := testManager(t)
	id := types.SwapID{4, 5, 6}
	require.NoError(t, m.AddSwap(testInfo(id, types.CompletedSuccess)))

	svc := NewSwapService(m)
	var resp GetResponse
	require.NoError(t, svc.Get(nil, &GetRequest{ID: id.String()}, &resp))
	require.Equal(t, types.CompletedSuccess, resp.Info.Status)
}

func TestSwapService_Ongoing(t *testing.T) {
	m := testManager(t)
	id := types.SwapID{7, 8, 9}
	require.NoError(t, m.AddSwap(testInfo(id, types.BTCLocked)))

	svc := NewSwapService(m)
	var resp OngoingResponse
	require.NoError(t, svc.Ongoing(nil, &OngoingRequest{}, &resp))
	require.Len(t, resp.Swaps, 1)
	require.Equal(t, id, resp.Swaps[0].ID)
}

func TestSwapService_PastIDs(t *testing.T) {
	m := testManager(t)
	id := types.SwapID{9, 9, 9}
	require.NoError(t, m.AddSwap(testInfo(id, types.CompletedAbort)))

	svc := NewSwapService(m)
	var resp PastIDsResponse
	require.NoError(t, svc.PastIDs(nil, &PastIDsRequest{}, &resp))
	require.Contains(t, resp.IDs, id.String())
}

func TestDaemonService_Stop(t *testing.T) {
	stopped := false
	svc := NewDaemonService(func() { stopped = true })
	require.NoError(t, svc.Stop(nil, &StopRequest{}, &StopResponse{}))
	require.True(t, stopped)
}

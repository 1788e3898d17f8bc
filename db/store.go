// Package db persists swap Info records (protocol/swap.Info) and each
// role's resumable State across swapd restarts, keyed by swap ID, using
// ChainSafe/chaindb's embedded key-value store (§4.G).
package db

import (
	"fmt"

	"github.com/ChainSafe/chaindb"
	"github.com/fxamacker/cbor/v2"

	"github.com/xmrbtcswap/swapd/common/types"
	"github.com/xmrbtcswap/swapd/protocol/swap"
)

var (
	swapKeyPrefix  = []byte("swap-")
	stateKeyPrefix = []byte("state-")
)

// stateSchemaVersion is prepended to every persisted state blob so a future
// incompatible change to alice.State/bob.State's encoding can be detected
// on load instead of silently misparsed.
const stateSchemaVersion = 1

// Store is a chaindb-backed swap.Database.
type Store struct {
	db chaindb.Database
}

var _ swap.Database = (*Store)(nil)

// NewStore opens (or creates) a badger-backed store rooted at dataDir.
func NewStore(dataDir string) (*Store, error) {
	db, err := chaindb.NewBadgerDB(&chaindb.Config{
		DataDir: dataDir,
	})
	if err != nil {
		return nil, fmt.Errorf("db: opening store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutSwap persists info under its swap ID.
func (s *Store) PutSwap(info *swap.Info) error {
	b, err := cbor.Marshal(info)
	if err != nil {
		return fmt.Errorf("db: encoding swap %s: %w", info.ID, err)
	}
	return s.db.Put(swapKey(info.ID), b)
}

// GetSwap returns the swap.Info stored under id, or chaindb.ErrKeyNotFound
// if none exists.
func (s *Store) GetSwap(id types.SwapID) (*swap.Info, error) {
	b, err := s.db.Get(swapKey(id))
	if err != nil {
		return nil, err
	}

	info := new(swap.Info)
	if err := cbor.Unmarshal(b, info); err != nil {
		return nil, fmt.Errorf("db: decoding swap %s: %w", id, err)
	}
	return info, nil
}

// GetAllSwaps returns every swap.Info this store has ever persisted.
func (s *Store) GetAllSwaps() ([]*swap.Info, error) {
	iter := s.db.NewIterator()
	defer iter.Release()

	var swaps []*swap.Info
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) < len(swapKeyPrefix) || string(key[:len(swapKeyPrefix)]) != string(swapKeyPrefix) {
			continue
		}

		info := new(swap.Info)
		if err := cbor.Unmarshal(iter.Value(), info); err != nil {
			return nil, fmt.Errorf("db: decoding stored swap: %w", err)
		}
		swaps = append(swaps, info)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return swaps, nil
}

func swapKey(id types.SwapID) []byte {
	return append(append([]byte{}, swapKeyPrefix...), id[:]...)
}

// errSchemaVersion is returned by GetLatestState when a persisted blob's
// leading version byte does not match stateSchemaVersion.
var errSchemaVersion = fmt.Errorf("db: unsupported state schema version")

// PutLatestState persists the CBOR encoding of a role's resumable state
// (alice.State/bob.State) under id, overwriting whatever was stored before.
// Called on every state transition (§4.E/§4.F), making the write the swap
// driver's sole commit point (§5).
func (s *Store) PutLatestState(id types.SwapID, encoded []byte) error {
	b := make([]byte, 0, 1+len(encoded))
	b = append(b, stateSchemaVersion)
	b = append(b, encoded...)
	return s.db.Put(stateKey(id), b)
}

// GetLatestState returns the raw CBOR body previously passed to
// PutLatestState for id, or chaindb.ErrKeyNotFound if none exists.
func (s *Store) GetLatestState(id types.SwapID) ([]byte, error) {
	b, err := s.db.Get(stateKey(id))
	if err != nil {
		return nil, err
	}
	if len(b) < 1 {
		return nil, fmt.Errorf("db: empty state record for %s", id)
	}
	if b[0] != stateSchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", errSchemaVersion, b[0], stateSchemaVersion)
	}
	return b[1:], nil
}

func stateKey(id types.SwapID) []byte {
	return append(append([]byte{}, stateKeyPrefix...), id[:]...)
}

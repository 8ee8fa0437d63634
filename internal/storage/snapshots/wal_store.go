// Package snapshots journals published wallet snapshots in a write-ahead log.
// The journal feeds the history API only; live state is never restored from it.
package snapshots

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	defaultHistoryDir    = "./wal/wallets"
	historySegmentLimit  = 1000
	historyMaxSegments   = 100
	snapshotKeyPrefix    = "wallet_snapshot_"
	defaultHistoryLength = 500
)

var errNotInitialized = errors.New("wallet snapshot store is not initialized")

// WALStore persists wallet snapshots in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed snapshot journal under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultHistoryDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "wallets_",
		SegmentThreshold: historySegmentLimit,
		MaxSegments:      historyMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init wallet snapshot WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the snapshot under a per-chain key.
func (s *WALStore) Save(snapshot domain.WalletSnapshot) error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}
	if !snapshot.Chain.IsValid() {
		return errors.Wrapf(domain.ErrUnknownChain, "journal snapshot chain %q", snapshot.Chain)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal wallet snapshot")
	}

	key := snapshotKeyPrefix + snapshot.Chain.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// SnapshotsAfter returns up to limit snapshots written after index, oldest first.
// limit <= 0 applies the default page size.
func (s *WALStore) SnapshotsAfter(index uint64, limit int) ([]domain.WalletSnapshotRecord, error) {
	if s == nil || s.wal == nil {
		return nil, errNotInitialized
	}
	if limit <= 0 {
		limit = defaultHistoryLength
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]domain.WalletSnapshotRecord, 0, min(uint64(limit), current-index))
	for idx := index + 1; idx <= current && len(records) < limit; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, snapshotKeyPrefix) {
			continue
		}
		var snapshot domain.WalletSnapshot
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			return nil, errors.Wrapf(err, "decode wallet snapshot at %d", idx)
		}
		records = append(records, domain.WalletSnapshotRecord{
			Index:    idx,
			Snapshot: snapshot,
		})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errNotInitialized
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}

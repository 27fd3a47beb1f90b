package store

import "strata/internal/key"

// Snapshot is an immutable point-in-time view over the store.
// Acquisition is nothing but reading the pinned version number plus
// taking a shared handle to the store; no shard lock is held across
// the call.
type Snapshot struct {
	store   *Store
	pinned  uint64
}

// Snapshot pins the current global version and returns a view that
// never observes writes committed after this call.
func (s *Store) Snapshot() *Snapshot {
	return &Snapshot{store: s, pinned: s.CurrentVersion()}
}

// SnapshotAt pins an explicit version (used by recovery bookkeeping and
// tests; callers must ensure v has actually been published).
func (s *Store) SnapshotAt(v uint64) *Snapshot {
	return &Snapshot{store: s, pinned: v}
}

func (sn *Snapshot) Version() uint64 { return sn.pinned }

func (sn *Snapshot) Get(k key.Key) *Entry {
	return sn.store.GetAt(k, sn.pinned)
}

func (sn *Snapshot) Contains(k key.Key) bool {
	return sn.Get(k) != nil
}

func (sn *Snapshot) Range(run key.RunID, prefix []byte, cursor []byte, limit int) ([]key.Key, []byte) {
	return sn.store.Range(run, prefix, cursor, limit, sn.pinned)
}

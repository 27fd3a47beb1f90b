// Package kvstore is the plain key-value primitive facade:
// Get/Put/Delete/CAS over arbitrary Values, namespaced under
// key.PrimitiveKV. Each operation runs its own one-shot transaction
// rather than forcing every caller to manage a pkg/strata.Tx by hand.
package kvstore

import (
	"strata/internal/key"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/strata"
)

// Store is a handle to one run's key-value namespace.
type Store struct {
	db    *strata.DB
	runID key.RunID
}

func Open(db *strata.DB, runID key.RunID) *Store {
	return &Store{db: db, runID: runID}
}

func (s *Store) key(namespace, name string) key.Key {
	return key.New(s.runID, key.PrimitiveKV, namespace, name)
}

// Get reads the current value at namespace/name under a fresh snapshot.
func (s *Store) Get(namespace, name string) (value.Value, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return value.Value{}, false, err
	}
	defer tx.Abort()
	return tx.Read(s.key(namespace, name))
}

// Put writes v at namespace/name in its own transaction.
func (s *Store) Put(namespace, name string, v value.Value) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Write(s.key(namespace, name), v); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Delete tombstones namespace/name.
func (s *Store) Delete(namespace, name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Delete(s.key(namespace, name)); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// History returns up to limit historical versions of namespace/name,
// newest first (limit <= 0 means unlimited), optionally excluding
// anything at or after the before version (before == 0 means no
// filter). Facade history is KV-only.
func (s *Store) History(namespace, name string, limit int, before uint64) ([]strata.VersionedValue, error) {
	return s.db.History(s.key(namespace, name), limit, before)
}

// GetAt resolves namespace/name as of a specific version, returning a
// HistoryTrimmed error if retention GC has already pruned past it.
func (s *Store) GetAt(namespace, name string, version uint64) (value.Value, error) {
	return s.db.GetAt(s.key(namespace, name), version)
}

// CompareAndSwap installs newValue at namespace/name only if the
// key's prior state matches expected.
func (s *Store) CompareAndSwap(namespace, name string, expected txn.CasExpectation, newValue value.Value) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.CAS(s.key(namespace, name), expected, newValue); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Package strata is Strata's public handle: a thin wrapper over
// internal/engine.Engine that is the only way facade packages and
// cmd/strata reach the core. The core never imports this package back.
package strata

import (
	"sync"
	"time"

	"strata/internal/bundle"
	"strata/internal/engine"
	"strata/internal/errs"
	"strata/internal/gc"
	"strata/internal/index"
	"strata/internal/key"
	"strata/internal/run"
	"strata/internal/store"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/internal/vector"
	"strata/internal/wal"
)

// AccessMode and DurabilityMode are re-exported so callers never need
// to import strata/internal/engine or strata/internal/wal directly.
type AccessMode = engine.AccessMode
type DurabilityMode = wal.DurabilityMode
type BatchOptions = wal.BatchOptions
type Limits = value.Limits
type Policy = gc.Policy

const (
	ReadWrite = engine.ReadWrite
	ReadOnly  = engine.ReadOnly
)

const (
	DurabilityNone    = wal.None
	DurabilityBatched = wal.Batched
	DurabilityStrict  = wal.Strict
)

// Options configures Open.
type Options struct {
	// Path is the database directory; empty means a purely in-memory
	// engine (Durability is ignored in that case).
	Path            string
	AccessMode      AccessMode
	Durability      DurabilityMode
	Batch           BatchOptions
	VectorDimension int
	Limits          Limits

	// MaxCorruptEntries bounds how many corrupt WAL frames recovery
	// tolerates before aborting outright.
	MaxCorruptEntries int
}

// DB is an open Strata database connection.
type DB struct {
	mu     sync.RWMutex
	e      *engine.Engine
	closed bool
}

// Open opens (or creates) a database at opts.Path.
func Open(opts Options) (*DB, error) {
	e, err := engine.Open(engine.Options{
		AccessMode:        opts.AccessMode,
		Durability:        opts.Durability,
		Batch:             opts.Batch,
		Path:              opts.Path,
		VectorDimension:   opts.VectorDimension,
		Limits:            opts.Limits,
		MaxCorruptEntries: opts.MaxCorruptEntries,
	})
	if err != nil {
		return nil, err
	}
	return &DB{e: e}, nil
}

// ErrClosed is returned by any operation on a closed DB.
var ErrClosed = errs.New(errs.KindInternal, "database is closed")

// Close releases the database's WAL handle. It is an error to call
// Close more than once.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	db.closed = true
	return db.e.Close()
}

func (db *DB) checkOpen() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return nil
}

// CreateCheckpoint writes a fresh snapshot and truncates the WAL.
func (db *DB) CreateCheckpoint() error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	return db.e.CreateCheckpoint()
}

// Tx is a handle to one in-flight transaction. The
// handle remembers the context's id from Begin: once Commit or Abort
// returns the context to the engine's pool, a stale handle whose
// context has been reissued under a new id degrades to a no-op instead
// of touching the new owner's transaction.
type Tx struct {
	db *DB
	t  *txn.Txn
	id uint64
}

// Begin acquires a snapshot and a fresh transaction context.
func (db *DB) Begin() (*Tx, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	t := db.e.Begin()
	return &Tx{db: db, t: t, id: t.ID()}, nil
}

func (tx *Tx) stale() bool { return tx.t.ID() != tx.id }

func (tx *Tx) Read(k key.Key) (value.Value, bool, error) {
	if tx.stale() {
		return value.Value{}, false, errs.New(errs.KindInternal, "transaction is closed")
	}
	return tx.db.e.Read(tx.t, k)
}

func (tx *Tx) Write(k key.Key, v value.Value) error {
	if tx.stale() {
		return errs.New(errs.KindInternal, "transaction is closed")
	}
	return tx.db.e.Write(tx.t, k, v)
}

func (tx *Tx) Delete(k key.Key) error {
	if tx.stale() {
		return errs.New(errs.KindInternal, "transaction is closed")
	}
	return tx.db.e.Delete(tx.t, k)
}

func (tx *Tx) CAS(k key.Key, expected txn.CasExpectation, newValue value.Value) error {
	if tx.stale() {
		return errs.New(errs.KindInternal, "transaction is closed")
	}
	return tx.db.e.CAS(tx.t, k, expected, newValue)
}

// Commit validates and publishes the transaction.
func (tx *Tx) Commit() (engine.CommitResult, error) {
	if tx.stale() {
		return engine.CommitResult{}, errs.New(errs.KindInternal, "transaction is closed")
	}
	return tx.db.e.Commit(tx.t)
}

// Abort discards the transaction. Safe to call after a failed Commit.
func (tx *Tx) Abort() {
	if tx.stale() {
		return
	}
	tx.db.e.Abort(tx.t)
}

// Snapshot pins a read-only view independent of any transaction.
// Callers must call ReleaseSnapshot when done.
func (db *DB) Snapshot() *store.Snapshot {
	return db.e.Snapshot()
}

func (db *DB) ReleaseSnapshot(sn *store.Snapshot) {
	db.e.ReleaseSnapshot(sn)
}

// Range performs a lexicographic prefix scan through sn.
func (db *DB) Range(sn *store.Snapshot, runID key.RunID, prefix, cursor []byte, limit int) ([]key.Key, []byte) {
	return db.e.Range(sn, runID, prefix, cursor, limit)
}

// VersionedValue is one historical version of a key, returned by
// History and GetAt.
type VersionedValue struct {
	Value     value.Value
	Version   uint64
	Timestamp int64
}

// History returns up to limit historical versions of k, newest first
// (limit <= 0 means unlimited), optionally excluding anything at or
// after the before version (before == 0 means no filter).
func (db *DB) History(k key.Key, limit int, before uint64) ([]VersionedValue, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	entries := db.e.History(k, limit, before)
	out := make([]VersionedValue, 0, len(entries))
	for _, e := range entries {
		out = append(out, VersionedValue{Value: e.Value(), Version: e.GlobalVersion(), Timestamp: e.TimestampUTC()})
	}
	return out, nil
}

// GetAt resolves k as of a specific version, returning a HistoryTrimmed
// error if retention GC has already pruned past it.
func (db *DB) GetAt(k key.Key, version uint64) (value.Value, error) {
	if err := db.checkOpen(); err != nil {
		return value.Value{}, err
	}
	return db.e.GetAt(k, version)
}

// Run lifecycle passthroughs.
func (db *DB) RunCreate(tags []string) (key.RunID, error) { return db.e.RunCreate(tags) }
func (db *DB) RunGet(r key.RunID) (run.Meta, error)        { return db.e.RunGet(r) }
func (db *DB) RunTransition(r key.RunID, to run.State) (run.Meta, error) {
	return db.e.RunTransition(r, to)
}
func (db *DB) RunDelete(r key.RunID) error               { return db.e.RunDelete(r) }
func (db *DB) RunList() []run.Meta                       { return db.e.RunList() }
func (db *DB) RunQueryByState(s run.State) []key.RunID   { return db.e.RunQueryByState(s) }
func (db *DB) RunQueryByTag(tag string) []key.RunID      { return db.e.RunQueryByTag(tag) }

// BundleExport writes runID's bundle archive into destDir.
func (db *DB) BundleExport(runID key.RunID, destDir string) (string, error) {
	return bundle.Export(db.e, runID, destDir)
}

// BundleImport restores a bundle archive produced by BundleExport.
func (db *DB) BundleImport(path string) error {
	return bundle.Import(db.e, path)
}

// VectorIndex and TextIndex expose the engine's secondary indices to
// facade packages (pkg/vectorindex's Search, a future full-text
// facade) without those packages reaching into strata/internal/engine
// directly.
func (db *DB) VectorIndex() *vector.Index   { return db.e.VectorIndex() }
func (db *DB) TextIndex() *index.TextIndex  { return db.e.TextIndex() }

// SetRetentionPolicy installs a per-run retention policy.
func (db *DB) SetRetentionPolicy(r key.RunID, p Policy) {
	db.e.SetRetentionPolicy(r, p)
}

// RunGC runs one retention pass.
func (db *DB) RunGC(nowUnixNano int64) int {
	return db.e.RunGC(nowUnixNano)
}

// Retention policy constructors, re-exported so callers never import
// strata/internal/gc directly.
func KeepAll() Policy                    { return gc.KeepAllPolicy{} }
func KeepLast(n int) Policy               { return gc.KeepLastPolicy{N: n} }
func KeepFor(d time.Duration) Policy      { return gc.KeepForPolicy{Duration: d} }
func Composite(policies ...Policy) Policy { return gc.CompositePolicy{Policies: policies} }

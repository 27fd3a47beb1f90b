// Package engine wires the sharded store, WAL, OCC validator, and
// secondary indices into one commit pipeline: acquire snapshot, stage,
// validate, append, apply, publish.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

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

// AccessMode gates whether commit may carry a non-empty write set.
type AccessMode int

const (
	ReadWrite AccessMode = iota
	ReadOnly
)

// Options configures an Engine.
type Options struct {
	AccessMode AccessMode
	Durability wal.DurabilityMode
	Batch      wal.BatchOptions

	// Path is the database directory. Empty, with WALPath also empty,
	// means a purely in-memory engine with no WAL file and nothing to
	// recover from; Durability is then ignored.
	Path string

	// WALPath names a bare WAL file with no snapshot directory, for
	// tests that want just a log file. It is used only when Path is
	// empty; a non-empty Path always puts the WAL under <Path>/wal.
	WALPath string

	VectorDimension int

	// Limits are the configured value and key ceilings. The zero value
	// is replaced with value.DefaultLimits() at Open.
	Limits value.Limits

	// MaxCorruptEntries bounds how many checksum- or decode-failing WAL
	// frames recovery tolerates (by skipping them, using their
	// self-described length) before aborting outright with
	// wal.ErrTooManyCorruptEntries. The zero
	// value tolerates none: any such corruption aborts recovery. A torn
	// tail at the true end of the log (the ordinary result of a crash
	// mid-append) is never counted against this bound.
	MaxCorruptEntries int
}

// Engine is Strata's transactional core: one commit-serialisation
// lock guarding the store + WAL + indices.
type Engine struct {
	opts Options

	store *store.Store
	log   *wal.WAL

	// lockFD holds the database directory's exclusive advisory lock
	// for as long as the engine is open. Nil for
	// in-memory engines and ReadOnly opens, which never contend for
	// the WAL writer.
	lockFD *os.File

	runIndex  *index.RunIndex
	typeIndex *index.TypeIndex
	textIndex *index.TextIndex
	vecIndex  *vector.Index
	runs      *run.Manager
	gc        *gc.Collector

	commitMu sync.Mutex // serialises validators
	nextTxID uint64
	txnPool  *txn.Pool

	snapMu      sync.Mutex
	activeSnaps map[uint64]int // pinned version -> count of live holders

	retentionMu        sync.RWMutex
	retentionOverrides map[key.RunID]gc.Policy
}

// Open creates an Engine, recovering prior state from opts.Path if it
// names an existing database directory. With no Path but a WALPath,
// the Engine replays that bare WAL file with no snapshot directory
// and, if Durability is not None, keeps appending to it. With neither,
// the Engine starts empty and purely in-memory.
func Open(opts Options) (*Engine, error) {
	ri := index.NewRunIndex()
	dim := opts.VectorDimension
	if dim == 0 {
		dim = 128
	}
	if opts.Limits == (value.Limits{}) {
		opts.Limits = value.DefaultLimits()
	}
	e := &Engine{
		opts:               opts,
		runIndex:           ri,
		typeIndex:          index.NewTypeIndex(),
		textIndex:          index.NewTextIndex(),
		vecIndex:           vector.NewIndex(vector.DefaultConfig(dim)),
		activeSnaps:        make(map[uint64]int),
		retentionOverrides: make(map[key.RunID]gc.Policy),
		txnPool:            txn.NewPool(8),
	}

	if opts.Path != "" && opts.AccessMode != ReadOnly {
		if err := e.acquireDirLock(); err != nil {
			return nil, err
		}
	}

	if err := e.recoverAndOpenWAL(); err != nil {
		e.releaseDirLock()
		return nil, err
	}
	e.runs = run.NewManager(ri)
	e.rebuildIndices()
	e.gc = gc.NewCollector(e.store, e, e)
	return e, nil
}

// acquireDirLock takes an exclusive advisory lock on a LOCK file in
// the database directory so two processes never open the same WAL for
// writing at once. The unit of exclusivity is the whole directory
// (wal/, snapshots/, MANIFEST), not any single file.
func (e *Engine) acquireDirLock() error {
	if err := os.MkdirAll(e.opts.Path, 0o755); err != nil {
		return errs.Io(err)
	}
	f, err := os.OpenFile(filepath.Join(e.opts.Path, "LOCK"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errs.Io(err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return err
	}
	e.lockFD = f
	return nil
}

func (e *Engine) releaseDirLock() {
	if e.lockFD == nil {
		return
	}
	unlockFile(e.lockFD)
	e.lockFD.Close()
	e.lockFD = nil
}

func (e *Engine) Close() error {
	defer e.releaseDirLock()
	if e.log != nil {
		return e.log.Close()
	}
	return nil
}

// Store, Runs, VectorIndex, TextIndex expose the underlying components
// to the facade layer (pkg/strata) and CLI without re-deriving them.
func (e *Engine) Store() *store.Store         { return e.store }
func (e *Engine) Runs() *run.Manager          { return e.runs }
func (e *Engine) VectorIndex() *vector.Index  { return e.vecIndex }
func (e *Engine) TextIndex() *index.TextIndex { return e.textIndex }
func (e *Engine) TypeIndex() *index.TypeIndex { return e.typeIndex }

// Begin acquires a snapshot and a fresh txn_id, reusing a transaction
// context from the bounded pool when one is free.
func (e *Engine) Begin() *txn.Txn {
	id := atomic.AddUint64(&e.nextTxID, 1)
	snapVer := e.store.CurrentVersion()
	e.pinSnapshot(snapVer)
	return e.txnPool.Get(id, snapVer)
}

func (e *Engine) pinSnapshot(v uint64) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.activeSnaps[v]++
}

func (e *Engine) unpinSnapshot(v uint64) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if e.activeSnaps[v] <= 1 {
		delete(e.activeSnaps, v)
	} else {
		e.activeSnaps[v]--
	}
}

// OldestPinnedVersion implements gc.SnapshotTracker.
func (e *Engine) OldestPinnedVersion() (uint64, bool) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	if len(e.activeSnaps) == 0 {
		return 0, false
	}
	var min uint64
	first := true
	for v := range e.activeSnaps {
		if first || v < min {
			min, first = v, false
		}
	}
	return min, true
}

// PolicyFor implements gc.PolicyResolver.
func (e *Engine) PolicyFor(r key.RunID) gc.Policy {
	e.retentionMu.RLock()
	defer e.retentionMu.RUnlock()
	if p, ok := e.retentionOverrides[r]; ok {
		return p
	}
	return gc.KeepAllPolicy{}
}

// SetRetentionPolicy installs a per-run retention policy.
func (e *Engine) SetRetentionPolicy(r key.RunID, p gc.Policy) {
	e.retentionMu.Lock()
	defer e.retentionMu.Unlock()
	e.retentionOverrides[r] = p
}

// RunGC runs one retention pass.
func (e *Engine) RunGC(nowUnixNano int64) int {
	return e.gc.RunOnce(nowUnixNano)
}

// Read resolves key through txn's pinned snapshot, recording the
// observed version in the read set, and preferring the transaction's
// own uncommitted write if present (read-your-writes).
func (e *Engine) Read(t *txn.Txn, k key.Key) (value.Value, bool, error) {
	if !t.IsActive() {
		return value.Value{}, false, errs.New(errs.KindInternal, "transaction is not active")
	}
	if op, ok := t.WriteSet()[string(k.Encode())]; ok {
		if txn.WriteOpIsTombstone(op) {
			return value.Value{}, false, nil
		}
		return txn.WriteOpValue(op), true, nil
	}

	entry := e.store.GetAt(k, t.SnapshotVersion())
	if entry == nil {
		ver, _ := e.store.HeadVersionAt(k, t.SnapshotVersion())
		t.RecordRead(k, ver)
		return value.Value{}, false, nil
	}
	t.RecordRead(k, entry.GlobalVersion())
	return entry.Value(), true, nil
}

// Write stages a value write, first recording a read of the key's
// current version so write-write conflicts fall out of the read-set
// check at validation.
func (e *Engine) Write(t *txn.Txn, k key.Key, v value.Value) error {
	if e.opts.AccessMode == ReadOnly {
		return errs.New(errs.KindInternal, "database is read-only")
	}
	if err := e.validate(k, v); err != nil {
		return err
	}
	e.recordImplicitRead(t, k)
	return t.StageWrite(k, v)
}

func (e *Engine) Delete(t *txn.Txn, k key.Key) error {
	if e.opts.AccessMode == ReadOnly {
		return errs.New(errs.KindInternal, "database is read-only")
	}
	if err := k.Validate(e.opts.Limits.MaxKeyBytes); err != nil {
		return errs.WithDetails(errs.KindInvalidKey, err.Error(), map[string]any{"key": k.String()})
	}
	e.recordImplicitRead(t, k)
	return t.StageDelete(k)
}

func (e *Engine) CAS(t *txn.Txn, k key.Key, expected txn.CasExpectation, newValue value.Value) error {
	if e.opts.AccessMode == ReadOnly {
		return errs.New(errs.KindInternal, "database is read-only")
	}
	if err := e.validate(k, newValue); err != nil {
		return err
	}
	return t.StageCAS(k, expected, newValue)
}

// validate checks a pending write against the configured key and value
// limits before it ever reaches the write set; limit violations are
// surfaced immediately, never from inside commit.
func (e *Engine) validate(k key.Key, v value.Value) error {
	if err := k.Validate(e.opts.Limits.MaxKeyBytes); err != nil {
		return errs.WithDetails(errs.KindInvalidKey, err.Error(), map[string]any{"key": k.String()})
	}
	if err := e.opts.Limits.Validate(v); err != nil {
		return errs.WithDetails(errs.KindConstraintViolation, err.Error(), nil)
	}
	if k.Primitive == key.PrimitiveVector && v.Type() == value.TypeVector {
		if got, want := v.Vector().Dimension(), e.vecIndex.Dimension(); got != want {
			return errs.WithDetails(errs.KindConstraintViolation,
				fmt.Sprintf("vector dimension %d does not match the index's configured dimension %d", got, want),
				map[string]any{"dimension": got, "expected": want})
		}
	}
	return nil
}

// recordImplicitRead records the key's head version as observed through
// the snapshot: the raw chain-head global version, tombstone or value,
// 0 only when no chain entry resolves at all. Read and the validator
// use the same convention, so a key that was tombstoned when observed
// and re-created before commit still conflicts.
func (e *Engine) recordImplicitRead(t *txn.Txn, k key.Key) {
	enc := string(k.Encode())
	if _, ok := t.ReadSet()[enc]; ok {
		return
	}
	ver, _ := e.store.HeadVersionAt(k, t.SnapshotVersion())
	t.RecordRead(k, ver)
}

// Abort discards the transaction and returns its context to the pool
// for immediate reuse. A no-op on a transaction
// already in a terminal state, so callers may abort unconditionally
// after a failed Commit without unpinning twice or double-pooling the
// context.
func (e *Engine) Abort(t *txn.Txn) {
	if !t.IsActive() {
		return
	}
	e.unpinSnapshot(t.SnapshotVersion())
	t.Abort()
	e.txnPool.Put(t)
}

// Snapshot pins the current global version for the standalone read
// path, independent of any transaction. The pin participates in GC's
// floor the same way a transaction's snapshot does; callers must call
// ReleaseSnapshot when done.
func (e *Engine) Snapshot() *store.Snapshot {
	sn := e.store.Snapshot()
	e.pinSnapshot(sn.Version())
	return sn
}

// ReleaseSnapshot unpins a snapshot acquired via Snapshot, making its
// version eligible for GC again once no other holder references it.
func (e *Engine) ReleaseSnapshot(sn *store.Snapshot) {
	e.unpinSnapshot(sn.Version())
}

// Range performs a lexicographic prefix scan through sn.
func (e *Engine) Range(sn *store.Snapshot, run key.RunID, prefix []byte, cursor []byte, limit int) ([]key.Key, []byte) {
	return sn.Range(run, prefix, cursor, limit)
}

// History returns up to limit versions of k, newest first, optionally
// excluding anything at or after the before version.
func (e *Engine) History(k key.Key, limit int, before uint64) []*store.Entry {
	return e.store.History(k, limit, before)
}

// GetAt resolves k as of a specific version, returning HistoryTrimmed
// if retention GC has already collected everything back to that point.
func (e *Engine) GetAt(k key.Key, version uint64) (value.Value, error) {
	entry, trimmed, earliest := e.store.VersionAt(k, version)
	if trimmed {
		return value.Value{}, errs.HistoryTrimmed(version, earliest)
	}
	if entry == nil || entry.IsTombstone() {
		return value.Value{}, errs.Newf(errs.KindNotFound, "key %s has no value at version %d", k.String(), version)
	}
	return entry.Value(), nil
}

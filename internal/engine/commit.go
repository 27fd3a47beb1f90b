package engine

import (
	"time"

	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/obslog"
	"strata/internal/store"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/internal/wal"
)

// CommitResult reports the outcome of a successful commit.
type CommitResult struct {
	Version uint64
}

// Commit runs the pipeline: validate, allocate the commit version,
// append the WAL group, apply the write set (updating indices as each
// entry is applied), publish.
// A failure at any step aborts the transaction and leaves the store
// unchanged.
func (e *Engine) Commit(t *txn.Txn) (CommitResult, error) {
	if !t.IsActive() {
		return CommitResult{}, errs.New(errs.KindInternal, "transaction is not active")
	}
	defer e.unpinSnapshot(t.SnapshotVersion())

	if e.opts.AccessMode == ReadOnly && !t.IsEmpty() {
		t.Abort()
		e.txnPool.Put(t)
		return CommitResult{}, errs.New(errs.KindInternal, "database is read-only")
	}

	// Read-only transactions commit without a WAL append or version
	// bump; there is nothing to validate or publish.
	if t.IsEmpty() {
		if err := t.MarkCommitted(); err != nil {
			return CommitResult{}, err
		}
		e.txnPool.Put(t)
		return CommitResult{Version: t.SnapshotVersion()}, nil
	}

	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if err := txn.Validate(e.store, t); err != nil {
		t.Abort()
		e.txnPool.Put(t)
		return CommitResult{}, err
	}

	// Allocate the commit version without publishing it: entries are
	// stamped and applied first, and only AdvanceVersion below makes
	// them visible to snapshots. Safe without an atomic because
	// commitMu is the only writer of the counter while the engine is
	// open.
	version := e.store.CurrentVersion() + 1
	now := time.Now().UnixNano()
	runID := e.runIDFor(t)

	if e.log != nil {
		if err := e.appendCommitGroup(t, version, now, runID); err != nil {
			t.Abort()
			e.txnPool.Put(t)
			return CommitResult{}, errs.Io(err)
		}
	}

	e.applyWriteSet(t, version, now)
	e.applyCasSet(t, version, now)

	e.store.AdvanceVersion(version)

	if err := t.MarkCommitted(); err != nil {
		return CommitResult{}, err
	}
	e.txnPool.Put(t)
	return CommitResult{Version: version}, nil
}

// runIDFor recovers a representative run_id for the WAL's BeginTxn
// record from whichever key the transaction touched first; every key
// in a single transaction is expected to share a run_id.
func (e *Engine) runIDFor(t *txn.Txn) key.RunID {
	for enc := range t.WriteSet() {
		if k, ok := t.KeyFor(enc); ok {
			return k.RunID
		}
	}
	for enc := range t.CasSet() {
		if k, ok := t.KeyFor(enc); ok {
			return k.RunID
		}
	}
	return key.RunID{}
}

func (e *Engine) appendCommitGroup(t *txn.Txn, version uint64, now int64, runID key.RunID) error {
	if err := e.log.Append(wal.Record{Kind: wal.KindBeginTxn, TxnID: t.ID(), RunID: runID, Timestamp: now}); err != nil {
		return err
	}

	for enc, op := range t.WriteSet() {
		k, ok := t.KeyFor(enc)
		if !ok {
			continue
		}
		if txn.WriteOpIsTombstone(op) {
			if err := e.log.Append(wal.Record{
				Kind: wal.KindDelete, TxnID: t.ID(), RunID: k.RunID, Key: k,
				VersionKind: versionKindWire(k.Primitive), VersionN: version, GlobalVer: version,
			}); err != nil {
				return err
			}
			continue
		}
		if err := e.log.Append(wal.Record{
			Kind: wal.KindWrite, TxnID: t.ID(), RunID: k.RunID, Key: k, Value: txn.WriteOpValue(op),
			VersionKind: versionKindWire(k.Primitive), VersionN: version, GlobalVer: version,
		}); err != nil {
			return err
		}
	}

	for enc, op := range t.CasSet() {
		k, ok := t.KeyFor(enc)
		if !ok {
			continue
		}
		if err := e.log.Append(wal.Record{
			Kind: wal.KindWrite, TxnID: t.ID(), RunID: k.RunID, Key: k, Value: txn.CasOpNewValue(op),
			VersionKind: versionKindWire(k.Primitive), VersionN: version, GlobalVer: version,
		}); err != nil {
			return err
		}
	}

	return e.log.Append(wal.Record{Kind: wal.KindCommitTxn, TxnID: t.ID(), RunID: runID})
}

// versionKindWire maps a primitive to the VersionKind its version
// numbers are drawn from.
func versionKindWire(p key.Primitive) wal.VersionKindWire {
	switch p {
	case key.PrimitiveEvent:
		return wal.VKSequence
	case key.PrimitiveStateCell:
		return wal.VKCounter
	default:
		return wal.VKTxnID
	}
}

func (e *Engine) applyWriteSet(t *txn.Txn, version uint64, now int64) {
	for enc, op := range t.WriteSet() {
		k, ok := t.KeyFor(enc)
		if !ok {
			continue
		}
		ver := store.Version{Kind: storeVersionKind(k.Primitive), N: version}
		if txn.WriteOpIsTombstone(op) {
			e.store.PutTombstone(k, store.NewTombstoneEntry(ver, version, t.ID(), now), now)
			e.typeIndex.Remove(k)
			e.textIndex.Remove(k)
			if k.Primitive == key.PrimitiveVector {
				e.vecIndex.Delete(k)
			}
			continue
		}
		v := txn.WriteOpValue(op)
		e.store.PutVersioned(k, store.NewValueEntry(v, ver, version, t.ID(), now), now)
		e.typeIndex.Put(k)
		e.indexValueFor(k, v)
	}
}

func (e *Engine) applyCasSet(t *txn.Txn, version uint64, now int64) {
	for enc, op := range t.CasSet() {
		k, ok := t.KeyFor(enc)
		if !ok {
			continue
		}
		ver := store.Version{Kind: storeVersionKind(k.Primitive), N: version}
		v := txn.CasOpNewValue(op)
		e.store.PutVersioned(k, store.NewValueEntry(v, ver, version, t.ID(), now), now)
		e.typeIndex.Put(k)
		e.indexValueFor(k, v)
	}
}

// indexValueFor updates the vector and text indices for a freshly
// written value, based on its primitive and runtime type.
func (e *Engine) indexValueFor(k key.Key, v value.Value) {
	switch k.Primitive {
	case key.PrimitiveVector:
		if v.Type() == value.TypeVector {
			// Engine.validate already rejects a dimension mismatch
			// before the write ever reaches the WAL, so Insert failing
			// here means the index itself is in a state the write path
			// didn't anticipate; log rather than silently drop the key
			// from vector search.
			if err := e.vecIndex.Insert(k, v.Vector()); err != nil {
				commitLog := obslog.WithComponent("commit")
				commitLog.Warn().Err(err).Str("key", k.String()).Msg("vector write applied to the store but not indexed")
			}
		}
	default:
		if v.Type() == value.TypeString {
			e.textIndex.Index(k, v.Text())
		}
	}
}

func storeVersionKind(p key.Primitive) store.VersionKind {
	switch p {
	case key.PrimitiveEvent:
		return store.VersionSequence
	case key.PrimitiveStateCell:
		return store.VersionCounter
	default:
		return store.VersionTxnID
	}
}

package engine

import (
	"sort"

	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/store"
	"strata/internal/wal"
)

// ExportRunRecords reconstructs the ordered WAL record groups for a run
// directly from its current store state, grouped by the global version
// every write in one original transaction shares. Keys and their
// chain entries are walked in a fixed order so two exports of the same
// unmodified run produce byte-identical output.
func (e *Engine) ExportRunRecords(runID key.RunID) []wal.Record {
	type item struct {
		key   key.Key
		entry *store.Entry
	}
	var items []item
	e.store.ForEachKeyInRun(runID, func(k key.Key, head *store.Entry) {
		for en := head; en != nil; en = en.Next() {
			items = append(items, item{key: k, entry: en})
		}
	})

	sort.Slice(items, func(i, j int) bool {
		if items[i].entry.GlobalVersion() != items[j].entry.GlobalVersion() {
			return items[i].entry.GlobalVersion() < items[j].entry.GlobalVersion()
		}
		return string(items[i].key.Encode()) < string(items[j].key.Encode())
	})

	groups := make(map[uint64][]item)
	var order []uint64
	for _, it := range items {
		gv := it.entry.GlobalVersion()
		if _, ok := groups[gv]; !ok {
			order = append(order, gv)
		}
		groups[gv] = append(groups[gv], it)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var out []wal.Record
	for _, gv := range order {
		grp := groups[gv]
		txnID := grp[0].entry.TxnID()
		out = append(out, wal.Record{Kind: wal.KindBeginTxn, TxnID: txnID, RunID: runID, Timestamp: grp[0].entry.TimestampUTC()})
		for _, it := range grp {
			vk := wal.VersionKindWire(it.entry.Version().Kind)
			if it.entry.IsTombstone() {
				out = append(out, wal.Record{
					Kind: wal.KindDelete, TxnID: txnID, RunID: runID, Key: it.key,
					VersionKind: vk, VersionN: it.entry.Version().N, GlobalVer: gv,
				})
				continue
			}
			out = append(out, wal.Record{
				Kind: wal.KindWrite, TxnID: txnID, RunID: runID, Key: it.key, Value: it.entry.Value(),
				VersionKind: vk, VersionN: it.entry.Version().N, GlobalVer: gv,
			})
		}
		out = append(out, wal.Record{Kind: wal.KindCommitTxn, TxnID: txnID, RunID: runID})
	}
	return out
}

// ApplyBundleRecords installs a previously exported run's records
// directly into the store, preserving their original versions, txn
// ids, and timestamps so a round-tripped run re-exports byte-for-byte
// identically. It is a hard error if any record's run already exists.
func (e *Engine) ApplyBundleRecords(records []wal.Record) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var runID key.RunID
	haveRun := false
	for _, r := range records {
		if !haveRun {
			runID, haveRun = r.RunID, true
		}
		if _, err := e.runs.Get(r.RunID); err == nil {
			return errs.Newf(errs.KindRunExists, "run %s already exists", r.RunID.String())
		}
	}
	if !haveRun {
		return nil
	}

	pending := make(map[uint64][]wal.Record)
	begins := make(map[uint64]wal.Record)
	var maxVersion uint64

	for _, r := range records {
		switch r.Kind {
		case wal.KindBeginTxn:
			pending[r.TxnID] = nil
			begins[r.TxnID] = r
		case wal.KindWrite, wal.KindDelete:
			pending[r.TxnID] = append(pending[r.TxnID], r)
		case wal.KindAbortTxn:
			delete(pending, r.TxnID)
			delete(begins, r.TxnID)
		case wal.KindCommitTxn:
			begin := begins[r.TxnID]
			if e.log != nil {
				_ = e.log.Append(begin)
			}
			for _, op := range pending[r.TxnID] {
				ver := store.Version{Kind: store.VersionKind(op.VersionKind), N: op.VersionN}
				// Stamp entries with the BeginTxn record's original
				// commit time: a re-export rebuilds its BeginTxn
				// timestamp from the entry, so anything but the
				// preserved value would change the bundle's bytes.
				if op.Kind == wal.KindDelete {
					e.store.PutTombstone(op.Key, store.NewTombstoneEntry(ver, op.GlobalVer, r.TxnID, begin.Timestamp), begin.Timestamp)
				} else {
					e.store.PutVersioned(op.Key, store.NewValueEntry(op.Value, ver, op.GlobalVer, r.TxnID, begin.Timestamp), begin.Timestamp)
				}
				if op.GlobalVer > maxVersion {
					maxVersion = op.GlobalVer
				}
				if e.log != nil {
					_ = e.log.Append(op)
				}
			}
			if e.log != nil {
				_ = e.log.Append(r)
			}
			delete(pending, r.TxnID)
			delete(begins, r.TxnID)
		}
	}

	e.store.AdvanceVersion(maxVersion)
	e.restoreRunIndices(runID)
	return nil
}

// Package trace is the reasoning-trace primitive facade:
// a sequence of numbered steps per (run_id, trace_id), keyed so
// namespace="trace/<trace_id>" and name is a zero-padded step number,
// the same lexicographic-ordering trick pkg/eventlog uses for topics.
// Unlike events, a trace step is addressed by the caller's own step
// number rather than an engine-assigned one; callers append steps
// they've already numbered, e.g. an agent's own reasoning-step
// counter.
package trace

import (
	"fmt"

	"strata/internal/key"
	"strata/internal/value"
	"strata/pkg/strata"
)

// Trace is a handle to one run's named reasoning trace.
type Trace struct {
	db      *strata.DB
	runID   key.RunID
	traceID string
}

func Open(db *strata.DB, runID key.RunID, traceID string) *Trace {
	return &Trace{db: db, runID: runID, traceID: traceID}
}

func (t *Trace) namespace() string { return "trace/" + t.traceID }

func (t *Trace) stepKey(step uint64) key.Key {
	return key.New(t.runID, key.PrimitiveTrace, t.namespace(), fmt.Sprintf("%020d", step))
}

// Record writes the reasoning step at the given step number. Writing
// the same step number twice overwrites it in place, since trace
// entries use TxnId versioning like any other overwritten key; callers
// wanting append-only semantics should number steps monotonically
// themselves (e.g. len(Steps())+1).
func (t *Trace) Record(step uint64, payload value.Value) error {
	tx, err := t.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Write(t.stepKey(step), payload); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Step reads one recorded step.
func (t *Trace) Step(step uint64) (value.Value, bool, error) {
	tx, err := t.db.Begin()
	if err != nil {
		return value.Value{}, false, err
	}
	defer tx.Abort()
	return tx.Read(t.stepKey(step))
}

// Steps returns up to limit recorded steps in order, starting after
// afterStep.
func (t *Trace) Steps(afterStep uint64, limit int) ([]value.Value, error) {
	sn := t.db.Snapshot()
	defer t.db.ReleaseSnapshot(sn)

	prefix := key.New(t.runID, key.PrimitiveTrace, t.namespace(), "").Encode()
	var cursor []byte
	if afterStep > 0 {
		cursor = t.stepKey(afterStep).Encode()
	}
	keys, _ := t.db.Range(sn, t.runID, prefix, cursor, limit)

	out := make([]value.Value, 0, len(keys))
	for _, k := range keys {
		tx, err := t.db.Begin()
		if err != nil {
			return nil, err
		}
		v, ok, err := tx.Read(k)
		tx.Abort()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Delete removes one step. A trace has no separate lifecycle from its
// run; this just exposes the per-step tombstone for callers correcting
// a single entry.
func (t *Trace) Delete(step uint64) error {
	tx, err := t.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Delete(t.stepKey(step)); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

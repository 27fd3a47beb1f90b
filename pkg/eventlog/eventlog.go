// Package eventlog is the append-only event primitive facade. Every
// event is stored under key.PrimitiveEvent with a zero-padded decimal
// sequence number as its key name, so a lexicographic range scan
// returns events in append order.
//
// The engine's internal store.Version.N for PrimitiveEvent keys is
// simply the global MVCC commit counter (see internal/engine/commit.go),
// shared across every run and every primitive; it is not, and is not
// meant to be, a per-run gap-free sequence. That number only drives OCC
// conflict detection. The gap-free per-run sequence is modeled here
// instead: a reserved counter key (key.PrimitiveSystem, namespace
// "events/"+topic) is read and incremented in the same transaction as
// the append.
package eventlog

import (
	"fmt"

	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/strata"
)

// Log is a handle to one run's event topic.
type Log struct {
	db    *strata.DB
	runID key.RunID
	topic string
}

func Open(db *strata.DB, runID key.RunID, topic string) *Log {
	return &Log{db: db, runID: runID, topic: topic}
}

func (l *Log) counterKey() key.Key {
	return key.New(l.runID, key.PrimitiveSystem, "events/"+l.topic, "seq")
}

func (l *Log) entryKey(seq uint64) key.Key {
	return key.New(l.runID, key.PrimitiveEvent, l.topic, seqName(seq))
}

func seqName(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// Append stages one event after the topic's current tail, retrying on
// OCC conflict (a concurrent append to the same topic must retry, not
// fail the caller). It returns the assigned sequence number.
func (l *Log) Append(payload value.Value) (uint64, error) {
	for {
		tx, err := l.db.Begin()
		if err != nil {
			return 0, err
		}
		ck := l.counterKey()
		cur, ok, err := tx.Read(ck)
		if err != nil {
			tx.Abort()
			return 0, err
		}
		var next uint64
		if ok {
			next = uint64(cur.Int()) + 1
		} else {
			next = 1
		}
		if err := tx.Write(ck, value.Int(int64(next))); err != nil {
			tx.Abort()
			return 0, err
		}
		if err := tx.Write(l.entryKey(next), payload); err != nil {
			tx.Abort()
			return 0, err
		}
		if _, err := tx.Commit(); err != nil {
			if isConflict(err) {
				continue
			}
			return 0, err
		}
		return next, nil
	}
}

func isConflict(err error) bool {
	if e, ok := errs.As(err); ok {
		return e.Kind == errs.KindConflict || e.Kind == errs.KindReadWriteConflict || e.Kind == errs.KindWriteConflict
	}
	_, isTxnConflict := err.(*txn.ConflictError)
	return isTxnConflict
}

// Read returns the event at the given sequence number.
func (l *Log) Read(seq uint64) (value.Value, bool, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return value.Value{}, false, err
	}
	defer tx.Abort()
	return tx.Read(l.entryKey(seq))
}

// Range returns up to limit events starting after afterSeq (0 to read
// from the beginning), in sequence order, and the last sequence number
// returned (0 if none) for pagination.
func (l *Log) Range(afterSeq uint64, limit int) ([]value.Value, uint64, error) {
	sn := l.db.Snapshot()
	defer l.db.ReleaseSnapshot(sn)

	prefix := key.New(l.runID, key.PrimitiveEvent, l.topic, "").Encode()
	var cursor []byte
	if afterSeq > 0 {
		cursor = l.entryKey(afterSeq).Encode()
	}
	keys, _ := l.db.Range(sn, l.runID, prefix, cursor, limit)

	out := make([]value.Value, 0, len(keys))
	var last uint64
	for _, k := range keys {
		tx, err := l.db.Begin()
		if err != nil {
			return nil, 0, err
		}
		v, ok, err := tx.Read(k)
		tx.Abort()
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		out = append(out, v)
		var seq uint64
		fmt.Sscanf(k.Name, "%d", &seq)
		last = seq
	}
	return out, last, nil
}

// Tail returns the topic's current sequence number (0 if empty).
func (l *Log) Tail() (uint64, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Abort()
	v, ok, err := tx.Read(l.counterKey())
	if err != nil || !ok {
		return 0, err
	}
	return uint64(v.Int()), nil
}

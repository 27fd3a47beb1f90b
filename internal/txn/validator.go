package txn

import (
	"fmt"

	"strata/internal/key"
	"strata/internal/store"
)

// ConflictKind distinguishes the two OCC failure modes.
type ConflictKind int

const (
	ReadWriteConflict ConflictKind = iota
	CasConflict
)

// ConflictError reports which key and which rule failed validation.
type ConflictError struct {
	Kind     ConflictKind
	Key      key.Key
	Expected CasExpectation // only meaningful for CasConflict
	Actual   uint64         // head version observed at validation time
}

func (e *ConflictError) Error() string {
	switch e.Kind {
	case CasConflict:
		return fmt.Sprintf("strata/txn: cas conflict on %s", e.Key.String())
	default:
		return fmt.Sprintf("strata/txn: read-write conflict on %s", e.Key.String())
	}
}

// Validate runs the OCC validator against s. Must be called with the
// engine's commit-serialization lock held, so that the head versions
// it observes cannot change underneath it before apply.
//
//  1. For each key in the read set, the current head version must still
//     match what the transaction observed when it read, otherwise
//     ReadWriteConflict.
//  2. For each CAS predicate, the current head must match the expected
//     version-or-absence, otherwise CasConflict.
//
// Write-write conflicts are subsumed by (1): any staged write implies a
// prior read of that key (Engine.Write and Engine.Delete record one when
// the key is first touched), so first-committer-wins falls
// out of the read-set check alone.
func Validate(s *store.Store, t *Txn) error {
	for enc, observed := range t.ReadSet() {
		k, ok := t.KeyFor(enc)
		if !ok {
			continue
		}
		// Compare raw chain-head versions: HeadVersionAt reports a
		// tombstone's global version too (present=false), and the read
		// path records the same raw number, so a tombstone replaced by a
		// newer tombstone still registers as a conflict.
		current, _ := s.HeadVersionAt(k, s.CurrentVersion())
		if current != observed {
			return &ConflictError{Kind: ReadWriteConflict, Key: k, Actual: current}
		}
	}

	for enc, op := range t.CasSet() {
		k, ok := t.KeyFor(enc)
		if !ok {
			continue
		}
		current, present := s.HeadVersionAt(k, s.CurrentVersion())
		exp := CasOpExpected(op)
		if exp.Absent {
			if present {
				return &ConflictError{Kind: CasConflict, Key: k, Expected: exp, Actual: current}
			}
			continue
		}
		if !present || current != exp.Version {
			return &ConflictError{Kind: CasConflict, Key: k, Expected: exp, Actual: current}
		}
	}

	return nil
}

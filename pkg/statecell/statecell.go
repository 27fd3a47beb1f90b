// Package statecell is the CAS state-cell primitive facade. Cells
// live under key.PrimitiveStateCell; Increment is a convenience retry
// loop over the same optimistic commit path every other write uses,
// not a dedicated atomic-add opcode.
package statecell

import (
	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/strata"
)

// Cell is a handle to one run's state-cell namespace.
type Cell struct {
	db    *strata.DB
	runID key.RunID
}

func Open(db *strata.DB, runID key.RunID) *Cell {
	return &Cell{db: db, runID: runID}
}

func (c *Cell) key(namespace, name string) key.Key {
	return key.New(c.runID, key.PrimitiveStateCell, namespace, name)
}

// Get reads the cell's current value.
func (c *Cell) Get(namespace, name string) (value.Value, bool, error) {
	tx, err := c.db.Begin()
	if err != nil {
		return value.Value{}, false, err
	}
	defer tx.Abort()
	return tx.Read(c.key(namespace, name))
}

// CAS installs newValue only if the cell's prior state matches
// expected.
func (c *Cell) CAS(namespace, name string, expected txn.CasExpectation, newValue value.Value) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.CAS(c.key(namespace, name), expected, newValue); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Increment adds delta to the cell's current integer value (treating
// an absent cell as 0) and returns the new value, retrying on
// conflicting concurrent increments. Read-then-Write is enough to get
// first-committer-wins here: Read records the observed head version in
// the transaction's read set, so the OCC validator's ordinary
// read-write conflict check rejects a second concurrent incrementer
// the same way it would any other write-write race, with no separate
// CAS predicate needed.
func (c *Cell) Increment(namespace, name string, delta int64) (int64, error) {
	k := c.key(namespace, name)
	for {
		tx, err := c.db.Begin()
		if err != nil {
			return 0, err
		}
		cur, ok, err := tx.Read(k)
		if err != nil {
			tx.Abort()
			return 0, err
		}
		if ok && cur.Type() != value.TypeInt {
			tx.Abort()
			return 0, errs.Newf(errs.KindWrongType, "statecell: %s is not an integer cell", k.String())
		}
		var base int64
		if ok {
			base = cur.Int()
		}
		next := base + delta
		if err := tx.Write(k, value.Int(next)); err != nil {
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

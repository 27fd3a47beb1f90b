package strata_test

// End-to-end scenarios: one top-level open/close per scenario,
// asserting observable state rather than internals.

import (
	"testing"

	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/run"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/strata"
)

func mustOpen(t *testing.T, opts strata.Options) *strata.DB {
	t.Helper()
	db, err := strata.Open(opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return db
}

func mustRun(t *testing.T, db *strata.DB) key.RunID {
	t.Helper()
	r, err := db.RunCreate(nil)
	if err != nil {
		t.Fatalf("run create: %v", err)
	}
	return r
}

// Tombstone visibility: a deleted key reads as absent.
func TestScenario_TombstoneVisibility(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r := mustRun(t, db)
	k := key.New(r, key.PrimitiveKV, "ns", "x")

	tx, _ := db.Begin()
	if err := tx.Write(k, value.Int(42)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2, _ := db.Begin()
	v, ok, err := tx2.Read(k)
	if err != nil || !ok || v.Int() != 42 {
		t.Fatalf("expected Some(42), got %v ok=%v err=%v", v, ok, err)
	}
	tx2.Abort()

	tx3, _ := db.Begin()
	if err := tx3.Delete(k); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tx3.Commit(); err != nil {
		t.Fatalf("commit delete: %v", err)
	}

	tx4, _ := db.Begin()
	_, ok, err = tx4.Read(k)
	if err != nil {
		t.Fatalf("read after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected None after delete, got present")
	}
	tx4.Abort()
}

// OCC first-committer-wins: of two conflicting writers, the second
// to commit loses.
func TestScenario_OCCFirstCommitterWins(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r := mustRun(t, db)
	k := key.New(r, key.PrimitiveKV, "ns", "k")

	seed, _ := db.Begin()
	if err := seed.Write(k, value.Int(0)); err != nil {
		t.Fatalf("seed write: %v", err)
	}
	if _, err := seed.Commit(); err != nil {
		t.Fatalf("seed commit: %v", err)
	}

	t1, _ := db.Begin()
	t2, _ := db.Begin()

	v0, ok, err := t1.Read(k)
	if err != nil || !ok || v0.Int() != 0 {
		t.Fatalf("t1 read: %v ok=%v err=%v", v0, ok, err)
	}
	v0b, ok, err := t2.Read(k)
	if err != nil || !ok || v0b.Int() != 0 {
		t.Fatalf("t2 read: %v ok=%v err=%v", v0b, ok, err)
	}

	if err := t1.Write(k, value.Int(1)); err != nil {
		t.Fatalf("t1 write: %v", err)
	}
	if err := t2.Write(k, value.Int(1)); err != nil {
		t.Fatalf("t2 write: %v", err)
	}

	res, err := t1.Commit()
	if err != nil {
		t.Fatalf("t1 commit: %v", err)
	}

	_, err = t2.Commit()
	if err == nil {
		t.Fatalf("expected t2 commit to fail with a read-write conflict")
	}
	var ce *txn.ConflictError
	if !asConflictError(err, &ce) {
		t.Fatalf("expected *txn.ConflictError, got %T: %v", err, err)
	}
	if ce.Kind != txn.ReadWriteConflict {
		t.Fatalf("expected ReadWriteConflict, got %v", ce.Kind)
	}

	readTx, _ := db.Begin()
	final, ok, err := readTx.Read(k)
	if err != nil || !ok || final.Int() != 1 {
		t.Fatalf("expected store to hold 1, got %v ok=%v err=%v", final, ok, err)
	}
	readTx.Abort()

	if res.Version == 0 {
		t.Fatalf("expected a non-zero commit version from t1")
	}
}

func asConflictError(err error, out **txn.ConflictError) bool {
	ce, ok := err.(*txn.ConflictError)
	if !ok {
		return false
	}
	*out = ce
	return true
}

// CAS with expected-absent succeeds once, then conflicts.
func TestScenario_CASAbsent(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r := mustRun(t, db)
	k := key.New(r, key.PrimitiveKV, "ns", "new")

	tx1, _ := db.Begin()
	if err := tx1.CAS(k, txn.CasExpectation{Absent: true}, value.Int(1)); err != nil {
		t.Fatalf("cas1 stage: %v", err)
	}
	res, err := tx1.Commit()
	if err != nil {
		t.Fatalf("cas1 commit: %v", err)
	}
	if res.Version == 0 {
		t.Fatalf("expected non-zero version")
	}

	tx2, _ := db.Begin()
	if err := tx2.CAS(k, txn.CasExpectation{Absent: true}, value.Int(2)); err != nil {
		t.Fatalf("cas2 stage: %v", err)
	}
	_, err = tx2.Commit()
	if err == nil {
		t.Fatalf("expected second absent-CAS to conflict")
	}
	var ce *txn.ConflictError
	if !asConflictError(err, &ce) || ce.Kind != txn.CasConflict {
		t.Fatalf("expected CasConflict, got %v", err)
	}
}

// Recovery after reopen. Commits A and B, stages C and aborts it,
// closes the handle, then reopens and checks that A and B survived
// while C did not.
func TestScenario_CrashRecovery(t *testing.T) {
	dir := t.TempDir()
	db := mustOpen(t, strata.Options{Path: dir, Durability: strata.DurabilityStrict})
	r := mustRun(t, db)
	kA := key.New(r, key.PrimitiveKV, "ns", "a")
	kB := key.New(r, key.PrimitiveKV, "ns", "b")
	kC := key.New(r, key.PrimitiveKV, "ns", "c")

	txA, _ := db.Begin()
	if err := txA.Write(kA, value.Int(1)); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if _, err := txA.Commit(); err != nil {
		t.Fatalf("commit a: %v", err)
	}

	txB, _ := db.Begin()
	if err := txB.Write(kB, value.Int(2)); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if _, err := txB.Commit(); err != nil {
		t.Fatalf("commit b: %v", err)
	}

	txC, _ := db.Begin()
	if err := txC.Write(kC, value.Int(3)); err != nil {
		t.Fatalf("write c: %v", err)
	}
	txC.Abort()

	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2 := mustOpen(t, strata.Options{Path: dir, Durability: strata.DurabilityStrict})
	defer db2.Close()

	tx, _ := db2.Begin()
	defer tx.Abort()

	va, ok, err := tx.Read(kA)
	if err != nil || !ok || va.Int() != 1 {
		t.Fatalf("expected a=1 after recovery, got %v ok=%v err=%v", va, ok, err)
	}
	vb, ok, err := tx.Read(kB)
	if err != nil || !ok || vb.Int() != 2 {
		t.Fatalf("expected b=2 after recovery, got %v ok=%v err=%v", vb, ok, err)
	}
	_, ok, err = tx.Read(kC)
	if err != nil {
		t.Fatalf("read c: %v", err)
	}
	if ok {
		t.Fatalf("expected c absent after recovery, it was never committed")
	}
}

// Run isolation: the same key in two runs holds independent values.
func TestScenario_RunIsolation(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r1 := mustRun(t, db)
	r2 := mustRun(t, db)

	k1 := key.New(r1, key.PrimitiveKV, "ns", "shared")
	k2 := key.New(r2, key.PrimitiveKV, "ns", "shared")

	tx1, _ := db.Begin()
	if err := tx1.Write(k1, value.Int(100)); err != nil {
		t.Fatalf("write r1: %v", err)
	}
	if _, err := tx1.Commit(); err != nil {
		t.Fatalf("commit r1: %v", err)
	}

	tx2, _ := db.Begin()
	if err := tx2.Write(k2, value.Int(200)); err != nil {
		t.Fatalf("write r2: %v", err)
	}
	if _, err := tx2.Commit(); err != nil {
		t.Fatalf("commit r2: %v", err)
	}

	readBoth := func() (int64, bool, int64, bool) {
		tx, _ := db.Begin()
		defer tx.Abort()
		v1, ok1, err := tx.Read(k1)
		if err != nil {
			t.Fatalf("read r1: %v", err)
		}
		v2, ok2, err := tx.Read(k2)
		if err != nil {
			t.Fatalf("read r2: %v", err)
		}
		i1, i2 := int64(0), int64(0)
		if ok1 {
			i1 = v1.Int()
		}
		if ok2 {
			i2 = v2.Int()
		}
		return i1, ok1, i2, ok2
	}

	if i1, ok1, i2, ok2 := readBoth(); !ok1 || i1 != 100 || !ok2 || i2 != 200 {
		t.Fatalf("expected (100,true,200,true), got (%d,%v,%d,%v)", i1, ok1, i2, ok2)
	}

	if err := db.RunDelete(r1); err != nil {
		t.Fatalf("run delete r1: %v", err)
	}

	_, _, i2, ok2 := readBoth()
	if !ok2 || i2 != 200 {
		t.Fatalf("expected r2's value to survive r1's delete, got %d ok=%v", i2, ok2)
	}

	if _, err := db.RunGet(r1); err == nil {
		t.Fatalf("expected run get on a deleted run to fail")
	} else if errs.KindOf(err) != errs.KindRunNotFound {
		t.Fatalf("expected RunNotFound, got %v", err)
	}
}

// The same operation sequence produces identical observable state
// under every durability mode; only the crash-survival window differs.
func TestScenario_DurabilityModesAgree(t *testing.T) {
	modes := []strata.DurabilityMode{strata.DurabilityNone, strata.DurabilityBatched, strata.DurabilityStrict}

	run := func(dir string, mode strata.DurabilityMode) (int64, bool) {
		opts := strata.Options{Durability: mode}
		if mode != strata.DurabilityNone {
			opts.Path = dir
		}
		db := mustOpen(t, opts)
		defer db.Close()
		r := mustRun(t, db)
		k := key.New(r, key.PrimitiveKV, "ns", "x")

		tx, _ := db.Begin()
		if err := tx.Write(k, value.Int(7)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := tx.Write(key.New(r, key.PrimitiveKV, "ns", "y"), value.Int(8)); err != nil {
			t.Fatalf("write y: %v", err)
		}
		if _, err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}

		tx2, _ := db.Begin()
		defer tx2.Abort()
		v, ok, err := tx2.Read(k)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !ok {
			return 0, false
		}
		return v.Int(), true
	}

	var want int64
	var wantOK bool
	for i, mode := range modes {
		dir := t.TempDir()
		got, ok := run(dir, mode)
		if i == 0 {
			want, wantOK = got, ok
			continue
		}
		if got != want || ok != wantOK {
			t.Fatalf("mode %v disagreed: got (%d,%v), want (%d,%v)", mode, got, ok, want, wantOK)
		}
	}
}

// Run lifecycle transitions and tag queries, end to end.
func TestScenario_RunLifecycleRoundTrip(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r, err := db.RunCreate([]string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("run create: %v", err)
	}
	if _, err := db.RunTransition(r, run.StatePaused); err != nil {
		t.Fatalf("transition paused: %v", err)
	}
	meta, err := db.RunTransition(r, run.StateActive)
	if err != nil {
		t.Fatalf("transition active: %v", err)
	}
	if meta.State != run.StateActive {
		t.Fatalf("expected Active, got %s", meta.State)
	}
	byTag := db.RunQueryByTag("alpha")
	found := false
	for _, id := range byTag {
		if id == r {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected run to be found by tag %q", "alpha")
	}
}

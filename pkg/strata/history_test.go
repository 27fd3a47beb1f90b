package strata_test

import (
	"testing"

	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/strata"
)

func commitInt(t *testing.T, db *strata.DB, k key.Key, n int64) uint64 {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Write(k, value.Int(n)); err != nil {
		t.Fatalf("write: %v", err)
	}
	res, err := tx.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return res.Version
}

func TestHistoryWalksNewestFirst(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r := mustRun(t, db)
	k := key.New(r, key.PrimitiveKV, "ns", "x")

	var versions []uint64
	for i := int64(1); i <= 3; i++ {
		versions = append(versions, commitInt(t, db, k, i))
	}

	all, err := db.History(k, 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(all))
	}
	for i, vv := range all {
		wantVal := int64(3 - i)
		if vv.Value.Int() != wantVal {
			t.Fatalf("position %d: expected %d, got %v", i, wantVal, vv.Value)
		}
	}

	limited, err := db.History(k, 1, 0)
	if err != nil || len(limited) != 1 || limited[0].Version != versions[2] {
		t.Fatalf("expected only the newest version, got %v err=%v", limited, err)
	}

	older, err := db.History(k, 0, versions[2])
	if err != nil || len(older) != 2 {
		t.Fatalf("expected the 2 versions before %d, got %v err=%v", versions[2], older, err)
	}
}

func TestGetAtResolvesPointInTime(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r := mustRun(t, db)
	k := key.New(r, key.PrimitiveKV, "ns", "x")

	v1 := commitInt(t, db, k, 1)
	v2 := commitInt(t, db, k, 2)

	got, err := db.GetAt(k, v1)
	if err != nil || got.Int() != 1 {
		t.Fatalf("expected 1 at version %d, got %v err=%v", v1, got, err)
	}
	got, err = db.GetAt(k, v2)
	if err != nil || got.Int() != 2 {
		t.Fatalf("expected 2 at version %d, got %v err=%v", v2, got, err)
	}
	if _, err := db.GetAt(k, v1-1); err == nil || errs.KindOf(err) != errs.KindNotFound {
		t.Fatalf("expected NotFound before the first write, got %v", err)
	}
}

func TestGetAtReportsHistoryTrimmed(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r := mustRun(t, db)
	k := key.New(r, key.PrimitiveKV, "ns", "x")

	v1 := commitInt(t, db, k, 1)
	commitInt(t, db, k, 2)
	v3 := commitInt(t, db, k, 3)

	db.SetRetentionPolicy(r, strata.KeepLast(1))
	if dropped := db.RunGC(0); dropped == 0 {
		t.Fatal("expected GC to drop the older versions")
	}

	_, err := db.GetAt(k, v1)
	if err == nil {
		t.Fatal("expected HistoryTrimmed for a collected version")
	}
	e, ok := errs.As(err)
	if !ok || e.Kind != errs.KindHistoryTrimmed {
		t.Fatalf("expected HistoryTrimmed, got %v", err)
	}
	if got := e.Details["earliest_retained"]; got != v3 {
		t.Fatalf("expected earliest_retained %d, got %v", v3, got)
	}

	// The surviving head still resolves.
	got, err := db.GetAt(k, v3)
	if err != nil || got.Int() != 3 {
		t.Fatalf("expected 3 at the retained head, got %v err=%v", got, err)
	}
}

func TestCheckpointThenReopen(t *testing.T) {
	dir := t.TempDir()
	db := mustOpen(t, strata.Options{Path: dir, Durability: strata.DurabilityStrict})
	r := mustRun(t, db)
	kA := key.New(r, key.PrimitiveKV, "ns", "a")
	kB := key.New(r, key.PrimitiveKV, "ns", "b")

	commitInt(t, db, kA, 1)
	if err := db.CreateCheckpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	commitInt(t, db, kB, 2)
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2 := mustOpen(t, strata.Options{Path: dir, Durability: strata.DurabilityStrict})
	defer db2.Close()

	tx, _ := db2.Begin()
	defer tx.Abort()
	va, ok, err := tx.Read(kA)
	if err != nil || !ok || va.Int() != 1 {
		t.Fatalf("expected a=1 from the snapshot, got %v ok=%v err=%v", va, ok, err)
	}
	vb, ok, err := tx.Read(kB)
	if err != nil || !ok || vb.Int() != 2 {
		t.Fatalf("expected b=2 from the post-checkpoint WAL, got %v ok=%v err=%v", vb, ok, err)
	}
}

// Of concurrent CAS operations sharing the same expected version,
// exactly one commits.
func TestConcurrentCASExactlyOneWins(t *testing.T) {
	db := mustOpen(t, strata.Options{Durability: strata.DurabilityNone})
	defer db.Close()
	r := mustRun(t, db)
	k := key.New(r, key.PrimitiveStateCell, "cells", "slot")

	seedVersion := func() uint64 {
		tx, _ := db.Begin()
		if err := tx.Write(k, value.Int(0)); err != nil {
			t.Fatalf("seed: %v", err)
		}
		res, err := tx.Commit()
		if err != nil {
			t.Fatalf("seed commit: %v", err)
		}
		return res.Version
	}()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func(n int64) {
			tx, err := db.Begin()
			if err != nil {
				results <- err
				return
			}
			if err := tx.CAS(k, txn.CasExpectation{Version: seedVersion}, value.Int(n)); err != nil {
				tx.Abort()
				results <- err
				return
			}
			_, err = tx.Commit()
			results <- err
		}(int64(i + 1))
	}

	failures := 0
	for i := 0; i < 2; i++ {
		if err := <-results; err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one CAS to fail, got %d failures", failures)
	}
}

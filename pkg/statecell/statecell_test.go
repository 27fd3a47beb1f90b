package statecell_test

import (
	"sync"
	"testing"

	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/statecell"
	"strata/pkg/strata"
)

func openCell(t *testing.T) *statecell.Cell {
	t.Helper()
	db, err := strata.Open(strata.Options{Durability: strata.DurabilityNone})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	runID, err := db.RunCreate(nil)
	if err != nil {
		t.Fatalf("run create: %v", err)
	}
	return statecell.Open(db, runID)
}

func TestIncrementFromAbsentTreatsCellAsZero(t *testing.T) {
	c := openCell(t)
	got, err := c.Increment("counters", "hits", 3)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	got, err = c.Increment("counters", "hits", -1)
	if err != nil || got != 2 {
		t.Fatalf("expected 2, got %d err=%v", got, err)
	}
}

func TestIncrementRejectsNonIntegerCell(t *testing.T) {
	c := openCell(t)
	if err := c.CAS("counters", "weird", txn.CasExpectation{Absent: true}, value.String("nope")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := c.Increment("counters", "weird", 1); err == nil {
		t.Fatal("expected WrongType for a non-integer cell")
	}
}

func TestConcurrentIncrementsLoseNoUpdates(t *testing.T) {
	c := openCell(t)
	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Increment("counters", "shared", 1); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	v, ok, err := c.Get("counters", "shared")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if v.Int() != n {
		t.Fatalf("expected %d after %d concurrent increments, got %d", n, n, v.Int())
	}
}

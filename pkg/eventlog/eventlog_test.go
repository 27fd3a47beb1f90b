package eventlog_test

import (
	"sync"
	"testing"

	"strata/pkg/eventlog"
	"strata/pkg/strata"

	"strata/internal/value"
)

func openLog(t *testing.T) *eventlog.Log {
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
	return eventlog.Open(db, runID, "steps")
}

func TestAppendAssignsGapFreeSequence(t *testing.T) {
	log := openLog(t)
	for want := uint64(1); want <= 5; want++ {
		seq, err := log.Append(value.Int(int64(want)))
		if err != nil {
			t.Fatalf("append %d: %v", want, err)
		}
		if seq != want {
			t.Fatalf("expected sequence %d, got %d", want, seq)
		}
	}
	tail, err := log.Tail()
	if err != nil || tail != 5 {
		t.Fatalf("expected tail 5, got %d err=%v", tail, err)
	}
}

func TestConcurrentAppendsStayGapFree(t *testing.T) {
	log := openLog(t)
	const n = 20
	var wg sync.WaitGroup
	seqs := make(chan uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := log.Append(value.String("e"))
			if err != nil {
				t.Errorf("append: %v", err)
				return
			}
			seqs <- seq
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool, n)
	for s := range seqs {
		if seen[s] {
			t.Fatalf("duplicate sequence %d", s)
		}
		seen[s] = true
	}
	for want := uint64(1); want <= n; want++ {
		if !seen[want] {
			t.Fatalf("sequence %d missing: gap in event log", want)
		}
	}
}

func TestRangeReadsInAppendOrder(t *testing.T) {
	log := openLog(t)
	for i := int64(1); i <= 4; i++ {
		if _, err := log.Append(value.Int(i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	vs, last, err := log.Range(0, 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(vs) != 4 || last != 4 {
		t.Fatalf("expected 4 events up to seq 4, got %d up to %d", len(vs), last)
	}
	for i, v := range vs {
		if v.Int() != int64(i+1) {
			t.Fatalf("expected event %d at position %d, got %v", i+1, i, v)
		}
	}

	tailVs, last, err := log.Range(2, 10)
	if err != nil {
		t.Fatalf("range after 2: %v", err)
	}
	if len(tailVs) != 2 || last != 4 {
		t.Fatalf("expected events 3..4, got %d up to %d", len(tailVs), last)
	}
}

func TestReadAbsentSequence(t *testing.T) {
	log := openLog(t)
	if _, ok, err := log.Read(99); err != nil || ok {
		t.Fatalf("expected absent sequence, got ok=%v err=%v", ok, err)
	}
}

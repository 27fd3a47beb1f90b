package txn

import (
	"testing"

	"strata/internal/key"
	"strata/internal/value"
)

func TestPoolReusesReturnedContexts(t *testing.T) {
	p := NewPool(2)

	t1 := p.Get(1, 10)
	k := key.New(key.NewRunID(), key.PrimitiveKV, "", "x")
	t1.RecordRead(k, 5)
	t1.StageWrite(k, value.Int(1))
	t1.Abort()
	p.Put(t1)

	t2 := p.Get(2, 20)
	if t2 != t1 {
		t.Fatal("expected the pooled context to be reused")
	}
	if t2.ID() != 2 || t2.SnapshotVersion() != 20 {
		t.Fatalf("expected reset identity (2, 20), got (%d, %d)", t2.ID(), t2.SnapshotVersion())
	}
	if t2.State() != Active {
		t.Fatalf("expected Active after reset, got %v", t2.State())
	}
	if len(t2.ReadSet()) != 0 || len(t2.WriteSet()) != 0 || len(t2.CasSet()) != 0 {
		t.Fatal("expected staged sets to be cleared on reuse")
	}
}

func TestPoolIgnoresActiveContexts(t *testing.T) {
	p := NewPool(2)
	active := New(1, 1)
	p.Put(active)
	if got := p.Get(2, 2); got == active {
		t.Fatal("an Active context must never be pooled")
	}
}

func TestPoolBoundsItsCapacity(t *testing.T) {
	p := NewPool(2)
	var returned []*Txn
	for i := 0; i < 4; i++ {
		tx := New(uint64(i), 1)
		tx.Abort()
		p.Put(tx)
		returned = append(returned, tx)
	}
	// Only the two most recently returned contexts survive the bound.
	seen := map[*Txn]bool{}
	for i := 0; i < 2; i++ {
		seen[p.Get(100+uint64(i), 1)] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 distinct pooled contexts, got %d", len(seen))
	}
	if seen[returned[0]] || seen[returned[1]] {
		t.Fatal("expected the oldest returns to have been dropped at capacity")
	}
}

package store

import (
	"testing"

	"strata/internal/key"
	"strata/internal/value"
)

func testKey(run key.RunID, name string) key.Key {
	return key.New(run, key.PrimitiveKV, "", name)
}

func TestContainsAgreesWithGet(t *testing.T) {
	s := New()
	run := key.NewRunID()
	k := testKey(run, "x")

	if s.Contains(k) {
		t.Fatal("expected absent key to not be contained")
	}

	v := s.NextVersion()
	s.PutVersioned(k, NewValueEntry(value.Int(42), Version{Kind: VersionTxnID, N: v}, v, 1, 0), 0)

	if !s.Contains(k) || s.Get(k) == nil {
		t.Fatal("contains/get disagree after put")
	}

	tv := s.NextVersion()
	s.PutTombstone(k, NewTombstoneEntry(Version{Kind: VersionTxnID, N: tv}, tv, 2, 0), 0)

	if s.Contains(k) || s.Get(k) != nil {
		t.Fatal("contains/get disagree after tombstone")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	run := key.NewRunID()
	k := testKey(run, "x")

	v1 := s.NextVersion()
	s.PutVersioned(k, NewValueEntry(value.Int(1), Version{Kind: VersionTxnID, N: v1}, v1, 1, 0), 0)

	snap := s.Snapshot()

	v2 := s.NextVersion()
	s.PutVersioned(k, NewValueEntry(value.Int(2), Version{Kind: VersionTxnID, N: v2}, v2, 2, 0), 0)

	if got := snap.Get(k); got == nil || got.Value().Int() != 1 {
		t.Fatalf("snapshot should still see version 1, got %v", got)
	}
	if got := s.Get(k); got == nil || got.Value().Int() != 2 {
		t.Fatalf("live store should see version 2, got %v", got)
	}
}

func TestRunIsolationOnDelete(t *testing.T) {
	s := New()
	r1, r2 := key.NewRunID(), key.NewRunID()
	k1, k2 := testKey(r1, "shared"), testKey(r2, "shared")

	v1 := s.NextVersion()
	s.PutVersioned(k1, NewValueEntry(value.Int(100), Version{Kind: VersionTxnID, N: v1}, v1, 1, 0), 0)
	v2 := s.NextVersion()
	s.PutVersioned(k2, NewValueEntry(value.Int(200), Version{Kind: VersionTxnID, N: v2}, v2, 2, 0), 0)

	s.DeleteRun(r1)

	if s.Contains(k1) {
		t.Fatal("expected r1's key to be gone after DeleteRun(r1)")
	}
	if got := s.Get(k2); got == nil || got.Value().Int() != 200 {
		t.Fatal("expected r2's key to survive DeleteRun(r1)")
	}
}

func TestRangePrefixScanOrdering(t *testing.T) {
	s := New()
	run := key.NewRunID()
	for _, name := range []string{"c", "a", "b"} {
		k := testKey(run, name)
		v := s.NextVersion()
		s.PutVersioned(k, NewValueEntry(value.String(name), Version{Kind: VersionTxnID, N: v}, v, 1, 0), 0)
	}

	snap := s.Snapshot()
	keys, _ := snap.Range(run, nil, nil, 10)
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if key.Compare(keys[i-1], keys[i]) >= 0 {
			t.Fatalf("keys not in byte order: %v", keys)
		}
	}
}

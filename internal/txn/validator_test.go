package txn

import (
	"testing"

	"strata/internal/key"
	"strata/internal/store"
	"strata/internal/value"
)

func testKey(run key.RunID, name string) key.Key {
	return key.New(run, key.PrimitiveKV, "", name)
}

func TestValidateDetectsReadWriteConflict(t *testing.T) {
	s := store.New()
	run := key.NewRunID()
	k := testKey(run, "x")

	v1 := s.NextVersion()
	s.PutVersioned(k, store.NewValueEntry(value.Int(1), store.Version{Kind: store.VersionTxnID, N: v1}, v1, 1, 0), 0)

	snapVer := s.CurrentVersion()
	tx := New(1, snapVer)
	tx.RecordRead(k, v1)
	tx.StageWrite(k, value.Int(2))

	// A concurrent committer advances the head before this txn validates.
	v2 := s.NextVersion()
	s.PutVersioned(k, store.NewValueEntry(value.Int(99), store.Version{Kind: store.VersionTxnID, N: v2}, v2, 2, 0), 0)

	err := Validate(s, tx)
	if err == nil {
		t.Fatal("expected ReadWriteConflict, got nil")
	}
	ce, ok := err.(*ConflictError)
	if !ok || ce.Kind != ReadWriteConflict {
		t.Fatalf("expected ReadWriteConflict, got %v", err)
	}
}

func TestValidateCasAbsentSucceedsOnFreshKey(t *testing.T) {
	s := store.New()
	run := key.NewRunID()
	k := testKey(run, "new")

	tx := New(1, s.CurrentVersion())
	tx.StageCAS(k, CasExpectation{Absent: true}, value.Int(1))

	if err := Validate(s, tx); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestValidateCasAbsentFailsWhenPresent(t *testing.T) {
	s := store.New()
	run := key.NewRunID()
	k := testKey(run, "present")

	v1 := s.NextVersion()
	s.PutVersioned(k, store.NewValueEntry(value.Int(1), store.Version{Kind: store.VersionTxnID, N: v1}, v1, 1, 0), 0)

	tx := New(1, s.CurrentVersion())
	tx.StageCAS(k, CasExpectation{Absent: true}, value.Int(2))

	err := Validate(s, tx)
	if err == nil {
		t.Fatal("expected CasConflict, got nil")
	}
	ce, ok := err.(*ConflictError)
	if !ok || ce.Kind != CasConflict {
		t.Fatalf("expected CasConflict, got %v", err)
	}
}

func TestValidateCasVersionMatch(t *testing.T) {
	s := store.New()
	run := key.NewRunID()
	k := testKey(run, "cell")

	v1 := s.NextVersion()
	s.PutVersioned(k, store.NewValueEntry(value.Int(1), store.Version{Kind: store.VersionTxnID, N: v1}, v1, 1, 0), 0)

	tx := New(1, s.CurrentVersion())
	tx.StageCAS(k, CasExpectation{Version: v1}, value.Int(2))

	if err := Validate(s, tx); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

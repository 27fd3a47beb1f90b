package strata_test

import (
	"testing"

	"strata/internal/key"
	"strata/internal/run"
	"strata/internal/txn"
	"strata/internal/value"
	"strata/pkg/strata"
)

func TestOpenWriteReadCommit(t *testing.T) {
	db, err := strata.Open(strata.Options{Durability: strata.DurabilityNone})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	runID, err := db.RunCreate([]string{"demo"})
	if err != nil {
		t.Fatalf("run create: %v", err)
	}

	k := key.New(runID, key.PrimitiveKV, "ns", "greeting")

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Write(k, value.String("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin2: %v", err)
	}
	v, ok, err := tx2.Read(k)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !ok || v.Text() != "hello" {
		t.Fatalf("expected hello, got %v ok=%v", v, ok)
	}
	tx2.Abort()

	if _, err := db.RunTransition(runID, run.StateCompleted); err != nil {
		t.Fatalf("transition: %v", err)
	}

	dir := t.TempDir()
	path, err := db.BundleExport(runID, dir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	db2, err := strata.Open(strata.Options{Durability: strata.DurabilityNone})
	if err != nil {
		t.Fatalf("open2: %v", err)
	}
	defer db2.Close()
	if err := db2.BundleImport(path); err != nil {
		t.Fatalf("import: %v", err)
	}
	meta, err := db2.RunGet(runID)
	if err != nil {
		t.Fatalf("run get: %v", err)
	}
	if meta.State != run.StateCompleted {
		t.Fatalf("expected Completed, got %s", meta.State)
	}
}

func TestCASExpectedAbsent(t *testing.T) {
	db, err := strata.Open(strata.Options{Durability: strata.DurabilityNone})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	runID, err := db.RunCreate(nil)
	if err != nil {
		t.Fatalf("run create: %v", err)
	}
	k := key.New(runID, key.PrimitiveKV, "ns", "cell")

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.CAS(k, txn.CasExpectation{Absent: true}, value.Int(1)); err != nil {
		t.Fatalf("cas: %v", err)
	}
	if _, err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2, err := db.Begin()
	if err != nil {
		t.Fatalf("begin2: %v", err)
	}
	if err := tx2.CAS(k, txn.CasExpectation{Absent: true}, value.Int(2)); err != nil {
		t.Fatalf("cas2 stage: %v", err)
	}
	if _, err := tx2.Commit(); err == nil {
		t.Fatalf("expected second absent-CAS to fail validation")
	}
}

func TestSecondCloseFails(t *testing.T) {
	db, err := strata.Open(strata.Options{Durability: strata.DurabilityNone})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.Close(); err == nil {
		t.Fatalf("expected second close to fail")
	}
}

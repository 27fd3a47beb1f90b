package trace_test

import (
	"testing"

	"strata/internal/value"
	"strata/pkg/strata"
	"strata/pkg/trace"
)

func openTrace(t *testing.T) *trace.Trace {
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
	return trace.Open(db, runID, "planning")
}

func TestRecordAndStepsInOrder(t *testing.T) {
	tr := openTrace(t)
	for step := uint64(1); step <= 3; step++ {
		payload := value.Object(map[string]value.Value{"step": value.Int(int64(step))})
		if err := tr.Record(step, payload); err != nil {
			t.Fatalf("record %d: %v", step, err)
		}
	}

	steps, err := tr.Steps(0, 10)
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}
	for i, s := range steps {
		if got := s.Fields()["step"].Int(); got != int64(i+1) {
			t.Fatalf("position %d: expected step %d, got %d", i, i+1, got)
		}
	}
}

func TestRecordOverwritesSameStep(t *testing.T) {
	tr := openTrace(t)
	if err := tr.Record(1, value.String("draft")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tr.Record(1, value.String("final")); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	v, ok, err := tr.Step(1)
	if err != nil || !ok {
		t.Fatalf("step: ok=%v err=%v", ok, err)
	}
	if v.Text() != "final" {
		t.Fatalf("expected the re-recorded payload, got %q", v.Text())
	}
}

func TestDeleteRemovesStep(t *testing.T) {
	tr := openTrace(t)
	if err := tr.Record(1, value.String("oops")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := tr.Delete(1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := tr.Step(1); err != nil || ok {
		t.Fatalf("expected step gone, ok=%v err=%v", ok, err)
	}
}

package vector

import (
	"testing"

	"strata/internal/key"
	"strata/internal/value"
)

func vkey(run key.RunID, name string) key.Key {
	return key.New(run, key.PrimitiveVector, "", name)
}

func TestInsertAndSearchFindsNearest(t *testing.T) {
	idx := NewIndex(DefaultConfig(2))
	run := key.NewRunID()

	points := map[string][]float32{
		"a": {0, 0},
		"b": {1, 0},
		"c": {10, 10},
	}
	for name, data := range points {
		if err := idx.Insert(vkey(run, name), value.NewVector(data)); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	results, err := idx.SearchKNN(value.NewVector([]float32{0.1, 0}), 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	idx := NewIndex(DefaultConfig(2))
	run := key.NewRunID()
	k := vkey(run, "x")

	if err := idx.Insert(k, value.NewVector([]float32{1, 1})); err != nil {
		t.Fatal(err)
	}
	if !idx.Contains(k) {
		t.Fatal("expected index to contain key after insert")
	}
	if !idx.Delete(k) {
		t.Fatal("expected delete to report found")
	}
	if idx.Contains(k) {
		t.Fatal("expected key gone after delete")
	}
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx := NewIndex(DefaultConfig(3))
	run := key.NewRunID()
	err := idx.Insert(vkey(run, "bad"), value.NewVector([]float32{1, 2}))
	if err != ErrDimensionMismatch {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

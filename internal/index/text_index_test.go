package index

import (
	"testing"

	"strata/internal/key"
)

func tkey(run key.RunID, name string) key.Key {
	return key.New(run, key.PrimitiveKV, "docs", name)
}

func TestSearchRanksMatchingDocuments(t *testing.T) {
	ti := NewTextIndex()
	run := key.NewRunID()

	ti.Index(tkey(run, "a"), "the quick brown fox")
	ti.Index(tkey(run, "b"), "the lazy dog")
	ti.Index(tkey(run, "c"), "fox fox fox")

	hits := ti.Search("fox", 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for %q, got %d", "fox", len(hits))
	}
	// c mentions the term three times in a shorter document; it must
	// outrank a.
	if hits[0].Key.Name != "c" || hits[1].Key.Name != "a" {
		t.Fatalf("unexpected ranking: %v", hits)
	}
}

func TestSearchTieBreaksOnAscendingKey(t *testing.T) {
	ti := NewTextIndex()
	run := key.NewRunID()

	// Identical documents score identically; order must still be
	// deterministic.
	ti.Index(tkey(run, "b"), "same words here")
	ti.Index(tkey(run, "a"), "same words here")

	hits := ti.Search("words", 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if key.Compare(hits[0].Key, hits[1].Key) >= 0 {
		t.Fatalf("equal scores must order by ascending key, got %v", hits)
	}
}

func TestReindexReplacesOldPostings(t *testing.T) {
	ti := NewTextIndex()
	run := key.NewRunID()
	k := tkey(run, "doc")

	ti.Index(k, "alpha beta")
	ti.Index(k, "gamma")

	if hits := ti.Search("alpha", 10); len(hits) != 0 {
		t.Fatalf("expected stale term to be gone after reindex, got %v", hits)
	}
	if hits := ti.Search("gamma", 10); len(hits) != 1 {
		t.Fatalf("expected new term to be found, got %v", hits)
	}
}

func TestRemoveRunDropsEveryDocument(t *testing.T) {
	ti := NewTextIndex()
	r1, r2 := key.NewRunID(), key.NewRunID()

	ti.Index(tkey(r1, "x"), "shared term")
	ti.Index(tkey(r2, "y"), "shared term")

	ti.RemoveRun(r1)

	hits := ti.Search("shared", 10)
	if len(hits) != 1 || hits[0].Key.RunID != r2 {
		t.Fatalf("expected only r2's document to survive, got %v", hits)
	}
}

func TestTokenizerLowercasesAndSplitsPunctuation(t *testing.T) {
	got := WhitespaceTokenizer{}.Tokenize("Hello, World! x2")
	want := []string{"hello", "world", "x2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

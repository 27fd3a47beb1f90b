package index

import (
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"strata/internal/key"
)

// BM25Params tunes the scoring function.
type BM25Params struct {
	K1 float64
	B  float64
}

func DefaultBM25Params() BM25Params { return BM25Params{K1: 1.2, B: 0.75} }

// TextIndex is a BM25-lite inverted index over string values, keyed by
// term with roaring-bitmap postings for fast document-set intersection.
// Roaring bitmaps hold only membership; per-document
// term frequency is tracked in a parallel map since roaring has no
// payload slots. This mirrors the common roaring usage pattern of
// pairing a bitmap index with an out-of-band value table.
type TextIndex struct {
	mu sync.RWMutex

	params BM25Params

	nextDocID uint32
	docIDOf   map[string]uint32 // encoded key -> docID
	keyOfDoc  map[uint32]key.Key

	postings map[string]*roaring.Bitmap   // term -> docIDs
	termFreq map[string]map[uint32]int    // term -> docID -> freq
	docLen   map[uint32]int               // docID -> token count
	totalLen int64
}

func NewTextIndex() *TextIndex {
	return &TextIndex{
		params:    DefaultBM25Params(),
		docIDOf:   make(map[string]uint32),
		keyOfDoc:  make(map[uint32]key.Key),
		postings:  make(map[string]*roaring.Bitmap),
		termFreq:  make(map[string]map[uint32]int),
		docLen:    make(map[uint32]int),
	}
}

func (ti *TextIndex) docIDFor(k key.Key) uint32 {
	enc := string(k.Encode())
	if id, ok := ti.docIDOf[enc]; ok {
		return id
	}
	id := ti.nextDocID
	ti.nextDocID++
	ti.docIDOf[enc] = id
	ti.keyOfDoc[id] = k
	return id
}

// Index tokenizes text and (re)indexes it under k, replacing any prior
// posting for k first so re-indexing a mutated value is idempotent.
func (ti *TextIndex) Index(k key.Key, text string) {
	ti.mu.Lock()
	defer ti.mu.Unlock()

	ti.removeLocked(k)

	id := ti.docIDFor(k)
	terms := DefaultTokenizer().Tokenize(text)
	ti.docLen[id] = len(terms)
	ti.totalLen += int64(len(terms))

	counts := make(map[string]int, len(terms))
	for _, term := range terms {
		counts[term]++
	}
	for term, freq := range counts {
		bm, ok := ti.postings[term]
		if !ok {
			bm = roaring.New()
			ti.postings[term] = bm
		}
		bm.Add(id)
		tf, ok := ti.termFreq[term]
		if !ok {
			tf = make(map[uint32]int)
			ti.termFreq[term] = tf
		}
		tf[id] = freq
	}
}

// Remove drops k's postings entirely (used on delete/tombstone).
func (ti *TextIndex) Remove(k key.Key) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.removeLocked(k)
}

func (ti *TextIndex) removeLocked(k key.Key) {
	enc := string(k.Encode())
	id, ok := ti.docIDOf[enc]
	if !ok {
		return
	}
	ti.totalLen -= int64(ti.docLen[id])
	delete(ti.docLen, id)
	for term, bm := range ti.postings {
		if bm.Contains(id) {
			bm.Remove(id)
			delete(ti.termFreq[term], id)
			if bm.IsEmpty() {
				delete(ti.postings, term)
				delete(ti.termFreq, term)
			}
		}
	}
	delete(ti.docIDOf, enc)
	delete(ti.keyOfDoc, id)
}

// RemoveRun drops every indexed key belonging to run.
func (ti *TextIndex) RemoveRun(run key.RunID) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	var victims []key.Key
	for _, k := range ti.keyOfDoc {
		if k.RunID == run {
			victims = append(victims, k)
		}
	}
	for _, k := range victims {
		ti.removeLocked(k)
	}
}

// Hit is one scored search result.
type Hit struct {
	Key   key.Key
	Score float64
}

// Search scores every document containing at least one query term
// using BM25-lite, returning hits sorted by descending score with a
// deterministic ascending-key tie-break.
func (ti *TextIndex) Search(query string, limit int) []Hit {
	ti.mu.RLock()
	defer ti.mu.RUnlock()

	terms := DefaultTokenizer().Tokenize(query)
	if len(terms) == 0 || len(ti.docIDOf) == 0 {
		return nil
	}

	n := float64(len(ti.docIDOf))
	avgLen := float64(ti.totalLen) / n
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[uint32]float64)
	for _, term := range terms {
		bm, ok := ti.postings[term]
		if !ok {
			continue
		}
		df := float64(bm.GetCardinality())
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		tf := ti.termFreq[term]
		it := bm.Iterator()
		for it.HasNext() {
			id := it.Next()
			freq := float64(tf[id])
			dl := float64(ti.docLen[id])
			denom := freq + ti.params.K1*(1-ti.params.B+ti.params.B*dl/avgLen)
			scores[id] += idf * (freq * (ti.params.K1 + 1)) / denom
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, Hit{Key: ti.keyOfDoc[id], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return key.Compare(hits[i].Key, hits[j].Key) < 0
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

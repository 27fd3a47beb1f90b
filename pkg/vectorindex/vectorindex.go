// Package vectorindex is the vector-similarity primitive facade:
// nearest-neighbor search over embeddings written under
// key.PrimitiveVector. Writes go through the normal transactional path
// (pkg/strata.Tx.Write/Delete), which already keeps the engine's HNSW
// index (internal/vector) in sync during commit;
// this package only adds the typed Upsert/Delete convenience and the
// Search read path, so callers never reach into the index directly.
package vectorindex

import (
	"strata/internal/errs"
	"strata/internal/key"
	"strata/internal/value"
	"strata/internal/vector"
	"strata/pkg/strata"
)

// Index is a handle to one run's vector-similarity namespace.
type Index struct {
	db    *strata.DB
	runID key.RunID
}

// Open returns a handle scoped to runID. No state is created until the
// first Upsert; the run must already exist.
func Open(db *strata.DB, runID key.RunID) *Index {
	return &Index{db: db, runID: runID}
}

func (ix *Index) key(namespace, name string) key.Key {
	return key.New(ix.runID, key.PrimitiveVector, namespace, name)
}

// Upsert writes (or replaces) the embedding at namespace/name in its
// own transaction.
func (ix *Index) Upsert(namespace, name string, vec *value.Vector) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Write(ix.key(namespace, name), value.FromVector(vec)); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Delete tombstones the embedding at namespace/name.
func (ix *Index) Delete(namespace, name string) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	if err := tx.Delete(ix.key(namespace, name)); err != nil {
		tx.Abort()
		return err
	}
	_, err = tx.Commit()
	return err
}

// Search returns the k nearest neighbors to query across the whole
// database's vector index.
func (ix *Index) Search(query *value.Vector, k int) ([]vector.SearchResult, error) {
	idx := ix.db.VectorIndex()
	if idx == nil {
		return nil, errs.New(errs.KindInternal, "vector index not configured (VectorDimension unset at Open)")
	}
	return idx.SearchKNN(query, k)
}

// SearchWithEf is Search with an explicit candidate-list size, trading
// recall for latency.
func (ix *Index) SearchWithEf(query *value.Vector, k, ef int) ([]vector.SearchResult, error) {
	idx := ix.db.VectorIndex()
	if idx == nil {
		return nil, errs.New(errs.KindInternal, "vector index not configured (VectorDimension unset at Open)")
	}
	return idx.SearchKNNWithEf(query, k, ef)
}

// Dimension reports the database's configured vector dimension.
func (ix *Index) Dimension() int {
	idx := ix.db.VectorIndex()
	if idx == nil {
		return 0
	}
	return idx.Dimension()
}

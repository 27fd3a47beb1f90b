// Package runindex is the run-lifecycle primitive facade:
// Create/Transition/Query/Delete, a thin typed layer over
// pkg/strata.DB's Run* operations the way the other facades sit over
// key-level Read/Write/Delete. Kept separate so every primitive has a
// package named after the noun it manages.
package runindex

import (
	"strata/internal/key"
	"strata/internal/run"
	"strata/pkg/strata"
)

// Index is a handle to the database's run registry.
type Index struct {
	db *strata.DB
}

func Open(db *strata.DB) *Index {
	return &Index{db: db}
}

// Create starts a new run in the Active state.
func (ix *Index) Create(tags []string) (key.RunID, error) {
	return ix.db.RunCreate(tags)
}

// Get returns a run's current metadata.
func (ix *Index) Get(r key.RunID) (run.Meta, error) {
	return ix.db.RunGet(r)
}

// Transition moves a run to a new lifecycle state, rejecting illegal
// edges.
func (ix *Index) Transition(r key.RunID, to run.State) (run.Meta, error) {
	return ix.db.RunTransition(r, to)
}

// Delete cascade-deletes a run and every key/index entry under it.
func (ix *Index) Delete(r key.RunID) error {
	return ix.db.RunDelete(r)
}

// List returns every run's metadata.
func (ix *Index) List() []run.Meta {
	return ix.db.RunList()
}

// ByState returns the run ids currently in state s.
func (ix *Index) ByState(s run.State) []key.RunID {
	return ix.db.RunQueryByState(s)
}

// ByTag returns the run ids tagged with tag.
func (ix *Index) ByTag(tag string) []key.RunID {
	return ix.db.RunQueryByTag(tag)
}

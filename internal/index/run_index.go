// Package index implements Strata's memory-only secondary indices:
// run index, type index, and an inverted text index. All three are
// rebuilt from the primary store during recovery rather than
// persisted, so their internal representation favors fast incremental
// update over compactness.
package index

import (
	"sync"

	"strata/internal/key"
)

// RunState mirrors the run lifecycle states for indexing purposes;
// the canonical state graph lives in internal/run.
type RunState string

// RunMeta is the subset of run metadata the run index keys on.
type RunMeta struct {
	RunID     key.RunID
	State     RunState
	Tags      []string
	CreatedAt int64
}

// RunIndex maps run metadata attributes to run-ids.
type RunIndex struct {
	mu        sync.RWMutex
	byState   map[RunState]map[key.RunID]struct{}
	byTag     map[string]map[key.RunID]struct{}
	createdAt map[key.RunID]int64
	meta      map[key.RunID]RunMeta
}

func NewRunIndex() *RunIndex {
	return &RunIndex{
		byState:   make(map[RunState]map[key.RunID]struct{}),
		byTag:     make(map[string]map[key.RunID]struct{}),
		createdAt: make(map[key.RunID]int64),
		meta:      make(map[key.RunID]RunMeta),
	}
}

// Put registers or updates a run's metadata, removing it from any
// previous state bucket first (a run only ever occupies one state).
func (ri *RunIndex) Put(m RunMeta) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	if prev, ok := ri.meta[m.RunID]; ok {
		if bucket, ok := ri.byState[prev.State]; ok {
			delete(bucket, m.RunID)
		}
		for _, tag := range prev.Tags {
			if bucket, ok := ri.byTag[tag]; ok {
				delete(bucket, m.RunID)
			}
		}
	}

	if ri.byState[m.State] == nil {
		ri.byState[m.State] = make(map[key.RunID]struct{})
	}
	ri.byState[m.State][m.RunID] = struct{}{}

	for _, tag := range m.Tags {
		if ri.byTag[tag] == nil {
			ri.byTag[tag] = make(map[key.RunID]struct{})
		}
		ri.byTag[tag][m.RunID] = struct{}{}
	}

	ri.createdAt[m.RunID] = m.CreatedAt
	ri.meta[m.RunID] = m
}

// Remove drops a run from the index entirely (cascade delete).
func (ri *RunIndex) Remove(run key.RunID) {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	m, ok := ri.meta[run]
	if !ok {
		return
	}
	if bucket, ok := ri.byState[m.State]; ok {
		delete(bucket, run)
	}
	for _, tag := range m.Tags {
		if bucket, ok := ri.byTag[tag]; ok {
			delete(bucket, run)
		}
	}
	delete(ri.createdAt, run)
	delete(ri.meta, run)
}

func (ri *RunIndex) Get(run key.RunID) (RunMeta, bool) {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	m, ok := ri.meta[run]
	return m, ok
}

// QueryByState returns every run currently in state s.
func (ri *RunIndex) QueryByState(s RunState) []key.RunID {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	bucket := ri.byState[s]
	out := make([]key.RunID, 0, len(bucket))
	for r := range bucket {
		out = append(out, r)
	}
	return out
}

// QueryByTag returns every run tagged with tag.
func (ri *RunIndex) QueryByTag(tag string) []key.RunID {
	ri.mu.RLock()
	defer ri.mu.RUnlock()
	bucket := ri.byTag[tag]
	out := make([]key.RunID, 0, len(bucket))
	for r := range bucket {
		out = append(out, r)
	}
	return out
}

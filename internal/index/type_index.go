package index

import (
	"sync"

	"strata/internal/key"
)

// TypeIndex maps primitive-tag to the set of keys present for that
// primitive within a run. Used for primitive-scoped
// enumeration (e.g. "list every event-log key in run R") without a
// full prefix scan of the run's shard.
type TypeIndex struct {
	mu sync.RWMutex
	// run -> primitive -> encoded key -> decoded key
	byRunAndPrimitive map[key.RunID]map[key.Primitive]map[string]key.Key
}

func NewTypeIndex() *TypeIndex {
	return &TypeIndex{byRunAndPrimitive: make(map[key.RunID]map[key.Primitive]map[string]key.Key)}
}

func (ti *TypeIndex) Put(k key.Key) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	byPrim := ti.byRunAndPrimitive[k.RunID]
	if byPrim == nil {
		byPrim = make(map[key.Primitive]map[string]key.Key)
		ti.byRunAndPrimitive[k.RunID] = byPrim
	}
	bucket := byPrim[k.Primitive]
	if bucket == nil {
		bucket = make(map[string]key.Key)
		byPrim[k.Primitive] = bucket
	}
	bucket[string(k.Encode())] = k
}

func (ti *TypeIndex) Remove(k key.Key) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	byPrim, ok := ti.byRunAndPrimitive[k.RunID]
	if !ok {
		return
	}
	bucket, ok := byPrim[k.Primitive]
	if !ok {
		return
	}
	delete(bucket, string(k.Encode()))
}

// RemoveRun drops every key indexed for run (cascade delete).
func (ti *TypeIndex) RemoveRun(run key.RunID) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	delete(ti.byRunAndPrimitive, run)
}

// Keys returns every key indexed for (run, primitive).
func (ti *TypeIndex) Keys(run key.RunID, prim key.Primitive) []key.Key {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	byPrim, ok := ti.byRunAndPrimitive[run]
	if !ok {
		return nil
	}
	bucket, ok := byPrim[prim]
	if !ok {
		return nil
	}
	out := make([]key.Key, 0, len(bucket))
	for _, k := range bucket {
		out = append(out, k)
	}
	return out
}

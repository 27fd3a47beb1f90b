package run

import (
	"sync"

	"strata/internal/errs"
	"strata/internal/index"
	"strata/internal/key"
)

// Meta is a run's lifecycle metadata.
type Meta struct {
	RunID     key.RunID
	State     State
	Tags      []string
	CreatedAt int64
	UpdatedAt int64
}

// Manager tracks run metadata and enforces the lifecycle graph. It does
// not itself touch the primary store; run_delete's cascade is driven
// by the engine, which calls Manager.Remove after clearing the store,
// indices, and vector index for the run.
type Manager struct {
	mu    sync.RWMutex
	runs  map[key.RunID]*Meta
	index *index.RunIndex
}

func NewManager(ri *index.RunIndex) *Manager {
	return &Manager{runs: make(map[key.RunID]*Meta), index: ri}
}

// Create registers a new run in StateActive. Conflict (run already
// exists) is a hard error.
func (m *Manager) Create(run key.RunID, tags []string, now int64) (*Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run]; ok {
		return nil, errs.Newf(errs.KindRunExists, "run %s already exists", run.String())
	}
	meta := &Meta{RunID: run, State: StateActive, Tags: tags, CreatedAt: now, UpdatedAt: now}
	m.runs[run] = meta
	m.index.Put(index.RunMeta{RunID: run, State: ToIndexState(meta.State), Tags: tags, CreatedAt: now})
	return meta, nil
}

func (m *Manager) Get(run key.RunID) (*Meta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.runs[run]
	if !ok {
		return nil, errs.Newf(errs.KindRunNotFound, "run %s not found", run.String())
	}
	cp := *meta
	return &cp, nil
}

// SetState validates and applies a lifecycle transition.
func (m *Manager) SetState(run key.RunID, to State, now int64) (*Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.runs[run]
	if !ok {
		return nil, errs.Newf(errs.KindRunNotFound, "run %s not found", run.String())
	}
	next, err := Transition(meta.State, to)
	if err != nil {
		return nil, err
	}
	meta.State = next
	meta.UpdatedAt = now
	m.index.Put(index.RunMeta{RunID: run, State: ToIndexState(meta.State), Tags: meta.Tags, CreatedAt: meta.CreatedAt})
	cp := *meta
	return &cp, nil
}

// RequireOpen returns RunClosed unless the run is Active or Paused,
// the states in which mutating operations are accepted.
func (m *Manager) RequireOpen(run key.RunID) error {
	meta, err := m.Get(run)
	if err != nil {
		return err
	}
	if meta.State != StateActive && meta.State != StatePaused {
		return errs.Newf(errs.KindRunClosed, "run %s is %s", run.String(), meta.State)
	}
	return nil
}

// Restore installs meta directly, bypassing the existence check Create
// performs; used by recovery to rehydrate the manager from run
// metadata already found in the recovered store.
func (m *Manager) Restore(meta Meta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := meta
	m.runs[meta.RunID] = &cp
	m.index.Put(index.RunMeta{RunID: meta.RunID, State: ToIndexState(meta.State), Tags: meta.Tags, CreatedAt: meta.CreatedAt})
}

// Remove deletes the run's metadata entirely (cascade delete); the
// caller is responsible for clearing the run's store shard and
// secondary-index entries first.
func (m *Manager) Remove(run key.RunID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, run)
	m.index.Remove(run)
}

// List returns every known run's metadata.
func (m *Manager) List() []Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Meta, 0, len(m.runs))
	for _, meta := range m.runs {
		out = append(out, *meta)
	}
	return out
}

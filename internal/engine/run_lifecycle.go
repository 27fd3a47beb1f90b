package engine

import (
	"time"

	"strata/internal/errs"
	"strata/internal/index"
	"strata/internal/key"
	"strata/internal/run"
	"strata/internal/value"
)

// Run metadata is stored as an ordinary versioned entry under a
// reserved key, so its creation and every lifecycle transition
// flow through the same commit pipeline as any other write and survive
// recovery without a dedicated WAL record kind.
func runMetaKey(r key.RunID) key.Key {
	return key.New(r, key.PrimitiveRun, "", "meta")
}

func encodeRunMeta(m run.Meta) value.Value {
	tags := make([]value.Value, len(m.Tags))
	for i, t := range m.Tags {
		tags[i] = value.String(t)
	}
	return value.Object(map[string]value.Value{
		"state":      value.String(string(m.State)),
		"tags":       value.Array(tags),
		"created_at": value.Int(m.CreatedAt),
		"updated_at": value.Int(m.UpdatedAt),
	})
}

func decodeRunMeta(r key.RunID, v value.Value) run.Meta {
	fields := v.Fields()
	var tags []string
	for _, t := range fields["tags"].Items() {
		tags = append(tags, t.Text())
	}
	return run.Meta{
		RunID:     r,
		State:     run.State(fields["state"].Text()),
		Tags:      tags,
		CreatedAt: fields["created_at"].Int(),
		UpdatedAt: fields["updated_at"].Int(),
	}
}

// RunCreate registers a fresh run in StateActive.
func (e *Engine) RunCreate(tags []string) (key.RunID, error) {
	r := key.NewRunID()
	now := time.Now().UnixNano()
	meta := run.Meta{RunID: r, State: run.StateActive, Tags: tags, CreatedAt: now, UpdatedAt: now}

	t := e.Begin()
	if err := e.Write(t, runMetaKey(r), encodeRunMeta(meta)); err != nil {
		e.Abort(t)
		return key.RunID{}, err
	}
	if _, err := e.Commit(t); err != nil {
		return key.RunID{}, err
	}

	if _, err := e.runs.Create(r, tags, now); err != nil {
		return key.RunID{}, err
	}
	return r, nil
}

// RunGet returns a run's current metadata.
func (e *Engine) RunGet(r key.RunID) (run.Meta, error) {
	m, err := e.runs.Get(r)
	if err != nil {
		return run.Meta{}, err
	}
	return *m, nil
}

// RunTransition validates and applies a lifecycle move.
func (e *Engine) RunTransition(r key.RunID, to run.State) (run.Meta, error) {
	now := time.Now().UnixNano()

	t := e.Begin()
	v, ok, err := e.Read(t, runMetaKey(r))
	if err != nil {
		e.Abort(t)
		return run.Meta{}, err
	}
	if !ok {
		e.Abort(t)
		return run.Meta{}, errs.Newf(errs.KindRunNotFound, "run %s not found", r.String())
	}

	meta := decodeRunMeta(r, v)
	next, err := run.Transition(meta.State, to)
	if err != nil {
		e.Abort(t)
		return run.Meta{}, err
	}
	meta.State = next
	meta.UpdatedAt = now

	if err := e.Write(t, runMetaKey(r), encodeRunMeta(meta)); err != nil {
		e.Abort(t)
		return run.Meta{}, err
	}
	if _, err := e.Commit(t); err != nil {
		return run.Meta{}, err
	}

	updated, err := e.runs.SetState(r, to, now)
	if err != nil {
		return run.Meta{}, err
	}
	return *updated, nil
}

// RunDelete removes the run's shard and every entity keyed by its
// run_id, cascading through every secondary index.
//
// This cascade is a direct store/index operation, not routed through
// the transactional commit pipeline: the WAL's six record kinds
// (BeginTxn/Write/Delete/CommitTxn/AbortTxn/Checkpoint) have no
// "drop shard" kind, so a whole-run delete cannot be expressed as a
// single WAL-logged mutation the way a per-key write can. See
// DESIGN.md for the accepted durability consequence.
func (e *Engine) RunDelete(r key.RunID) error {
	if _, err := e.runs.Get(r); err != nil {
		return err
	}
	e.store.DeleteRun(r)
	e.typeIndex.RemoveRun(r)
	e.textIndex.RemoveRun(r)
	e.vecIndex.RemoveRun(r)
	e.runs.Remove(r)
	return nil
}

// RunList, RunQueryByState, RunQueryByTag expose run enumeration to
// facades and the CLI.
func (e *Engine) RunList() []run.Meta { return e.runs.List() }

func (e *Engine) RunQueryByState(s run.State) []key.RunID {
	return e.runIndex.QueryByState(index.RunState(s))
}

func (e *Engine) RunQueryByTag(tag string) []key.RunID {
	return e.runIndex.QueryByTag(tag)
}

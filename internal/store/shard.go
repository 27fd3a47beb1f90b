package store

import (
	"sort"
	"sync"

	"strata/internal/key"
)

// shard is a per-run bucket of the primary store.
type shard struct {
	mu      sync.RWMutex
	chains  map[string]*Chain // encoded key -> chain
	runID   key.RunID
	created int64
}

func newShard(run key.RunID, now int64) *shard {
	return &shard{chains: make(map[string]*Chain), runID: run, created: now}
}

// Store is the two-level sharded map: run_id -> shard -> key -> chain.
// Sharding by run_id is the explicit partitioning contract: operations
// on different runs never contend on the same lock.
type Store struct {
	mu      sync.RWMutex // protects the shards map itself (not its contents)
	shards  map[key.RunID]*shard
	version uint64 // global version counter, advanced only by the engine under the commit lock
}

func New() *Store {
	return &Store{shards: make(map[key.RunID]*shard)}
}

// CurrentVersion returns the global version counter's current value.
func (s *Store) CurrentVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// AdvanceVersion sets the global version counter to v if v is larger
// than the current value (used by recovery to fast-forward past
// replayed versions, and by the engine at commit time).
func (s *Store) AdvanceVersion(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.version {
		s.version = v
	}
}

// NextVersion allocates, publishes, and returns the next global
// version in one step. Used by recovery and tests; the commit pipeline
// instead stamps entries first and publishes via AdvanceVersion.
func (s *Store) NextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	return s.version
}

func (s *Store) getOrCreateShard(run key.RunID, now int64) *shard {
	s.mu.RLock()
	sh, ok := s.shards[run]
	s.mu.RUnlock()
	if ok {
		return sh
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok = s.shards[run]; ok {
		return sh
	}
	sh = newShard(run, now)
	s.shards[run] = sh
	return sh
}

func (s *Store) findShard(run key.RunID) (*shard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[run]
	return sh, ok
}

// Get returns the head entry for k if it is a value, or nil if absent
// or tombstoned. Takes only a read lock on the owning shard.
func (s *Store) Get(k key.Key) *Entry {
	sh, ok := s.findShard(k.RunID)
	if !ok {
		return nil
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.chains[string(k.Encode())]
	if !ok {
		return nil
	}
	head := c.Head()
	if head == nil || head.IsTombstone() {
		return nil
	}
	return head
}

// GetAt resolves k at a pinned global version (snapshot read path).
func (s *Store) GetAt(k key.Key, asOf uint64) *Entry {
	sh, ok := s.findShard(k.RunID)
	if !ok {
		return nil
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.chains[string(k.Encode())]
	if !ok {
		return nil
	}
	e := c.ResolveAt(asOf)
	if e == nil || e.IsTombstone() {
		return nil
	}
	return e
}

// HeadVersionAt returns the global version of the entry visible at asOf,
// tombstone or value, with present reporting whether that entry is a
// value; it returns 0 only when no entry resolves at asOf. Used by the
// OCC validator and CAS to compare "what the reader saw" against "what
// is current".
func (s *Store) HeadVersionAt(k key.Key, asOf uint64) (ver uint64, present bool) {
	sh, ok := s.findShard(k.RunID)
	if !ok {
		return 0, false
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.chains[string(k.Encode())]
	if !ok {
		return 0, false
	}
	e := c.ResolveAt(asOf)
	if e == nil {
		return 0, false
	}
	return e.GlobalVersion(), !e.IsTombstone()
}

// VersionAt resolves k's value as of global version asOf, like GetAt,
// but additionally reports whether retention GC has pruned past the
// requested version instead of silently treating it as absent.
func (s *Store) VersionAt(k key.Key, asOf uint64) (e *Entry, trimmed bool, earliestRetained uint64) {
	sh, ok := s.findShard(k.RunID)
	if !ok {
		return nil, false, 0
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.chains[string(k.Encode())]
	if !ok {
		return nil, false, 0
	}
	entry := c.ResolveAt(asOf)
	if entry == nil && c.Trimmed() && asOf < c.EarliestRetained() {
		return nil, true, c.EarliestRetained()
	}
	return entry, false, 0
}

// History returns up to limit entries of k's version chain, newest
// first (0 means unlimited), optionally skipping any entry whose
// global version is >= before (0 means no filter); the facade's
// history() operation.
func (s *Store) History(k key.Key, limit int, before uint64) []*Entry {
	sh, ok := s.findShard(k.RunID)
	if !ok {
		return nil
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.chains[string(k.Encode())]
	if !ok {
		return nil
	}
	var out []*Entry
	for e := c.Head(); e != nil; e = e.Next() {
		if before > 0 && e.GlobalVersion() >= before {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Contains agrees with Get by construction: true exactly when Get
// returns non-nil.
func (s *Store) Contains(k key.Key) bool {
	return s.Get(k) != nil
}

// PutVersioned pushes a new value head for k.
func (s *Store) PutVersioned(k key.Key, e *Entry, now int64) {
	sh := s.getOrCreateShard(k.RunID, now)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	enc := string(k.Encode())
	c, ok := sh.chains[enc]
	if !ok {
		c = &Chain{}
		sh.chains[enc] = c
	}
	c.Push(e)
}

// PutTombstone pushes a tombstone head for k.
func (s *Store) PutTombstone(k key.Key, e *Entry, now int64) {
	s.PutVersioned(k, e, now)
}

// Chain returns the raw chain for k, or nil. Used by GC and by recovery
// replay; callers must not mutate without holding the shard lock
// (GC acquires it via WithChainLocked).
func (s *Store) Chain(k key.Key) *Chain {
	sh, ok := s.findShard(k.RunID)
	if !ok {
		return nil
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.chains[string(k.Encode())]
}

// WithChainLocked runs fn with the owning shard's write lock held,
// giving GC exclusive access to mutate a chain in place.
func (s *Store) WithChainLocked(k key.Key, fn func(c *Chain)) {
	sh := s.getOrCreateShard(k.RunID, 0)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	enc := string(k.Encode())
	c, ok := sh.chains[enc]
	if !ok {
		return
	}
	fn(c)
}

// Range performs a lexicographic prefix scan within a run, starting
// after cursor (exclusive) and returning at most limit keys plus the
// cursor for the next page.
func (s *Store) Range(run key.RunID, prefix []byte, cursor []byte, limit int, asOf uint64) (keys []key.Key, nextCursor []byte) {
	sh, ok := s.findShard(run)
	if !ok {
		return nil, nil
	}
	sh.mu.RLock()
	type kc struct {
		enc string
		k   key.Key
	}
	all := make([]kc, 0, len(sh.chains))
	for enc, c := range sh.chains {
		if len(prefix) > 0 && (len(enc) < len(prefix) || enc[:len(prefix)] != string(prefix)) {
			continue
		}
		e := c.ResolveAt(asOf)
		if e == nil || e.IsTombstone() {
			continue
		}
		k, err := key.Decode([]byte(enc))
		if err != nil {
			continue
		}
		all = append(all, kc{enc: enc, k: k})
	}
	sh.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].enc < all[j].enc })

	startIdx := 0
	if len(cursor) > 0 {
		startIdx = sort.Search(len(all), func(i int) bool { return all[i].enc > string(cursor) })
	}

	out := make([]key.Key, 0, limit)
	for i := startIdx; i < len(all) && len(out) < limit; i++ {
		out = append(out, all[i].k)
	}
	if len(out) > 0 && startIdx+len(out) < len(all) {
		nextCursor = all[startIdx+len(out)-1].k.Encode()
	}
	return out, nextCursor
}

// DeleteRun removes the run's entire shard (cascade delete). It does
// not recurse into other runs.
func (s *Store) DeleteRun(run key.RunID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shards, run)
}

// TotalEntries and ShardCount support observability.
func (s *Store) TotalEntries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.chains)
		sh.mu.RUnlock()
	}
	return total
}

func (s *Store) ShardCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shards)
}

// ForEachKeyInRun iterates every key in run's shard whose chain has a
// head, passing that head, which may be a tombstone (used by GC,
// snapshot writing, index rebuild, and bundle export to enumerate
// keys).
func (s *Store) ForEachKeyInRun(run key.RunID, fn func(k key.Key, e *Entry)) {
	sh, ok := s.findShard(run)
	if !ok {
		return
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	for enc, c := range sh.chains {
		head := c.Head()
		if head == nil {
			continue
		}
		k, err := key.Decode([]byte(enc))
		if err != nil {
			continue
		}
		fn(k, head)
	}
}

// Runs returns every run_id with a non-empty shard.
func (s *Store) Runs() []key.RunID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]key.RunID, 0, len(s.shards))
	for r := range s.shards {
		out = append(out, r)
	}
	return out
}

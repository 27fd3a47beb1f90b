package txn

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Pool is a bounded free list of transaction contexts, reset rather
// than reallocated on reuse. Built over simplelru's fixed-capacity
// list, repurposed not for eviction-by-recency but as a capacity-
// bounded free list: a Put that would exceed the cap lets the LRU
// evict (and drop) the oldest pooled context instead of growing
// unbounded.
type Pool struct {
	mu       sync.Mutex
	free     *lru.LRU[int, *Txn]
	nextSlot int
}

// NewPool creates a pool with the given capacity.
func NewPool(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 8
	}
	l, _ := lru.NewLRU[int, *Txn](capacity, nil)
	return &Pool{free: l}
}

// Get returns a pooled *Txn reset for (id, snapVer), or a freshly
// allocated one if the pool is empty.
func (p *Pool) Get(id, snapVer uint64) *Txn {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		k, t, ok := p.free.RemoveOldest()
		if !ok {
			return New(id, snapVer)
		}
		_ = k
		t.Reset(id, snapVer)
		return t
	}
}

// Put returns t to the pool once its transaction has reached a
// terminal state. Calling Put on an Active transaction is a
// caller error and is ignored.
func (p *Pool) Put(t *Txn) {
	if t.State() == Active {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSlot++
	p.free.Add(p.nextSlot, t)
}

package gc

import (
	"strata/internal/key"
	"strata/internal/store"
)

// SnapshotTracker reports the oldest currently-pinned snapshot version,
// so GC never removes an entry a live snapshot might still read.
// The engine implements this over its
// active-snapshot registry.
type SnapshotTracker interface {
	OldestPinnedVersion() (version uint64, anyActive bool)
}

// PolicyResolver returns the effective retention policy for a run.
type PolicyResolver interface {
	PolicyFor(run key.RunID) Policy
}

// Collector runs retention GC over a store's version chains.
type Collector struct {
	store     *store.Store
	snapshots SnapshotTracker
	policies  PolicyResolver
}

func NewCollector(s *store.Store, snapshots SnapshotTracker, policies PolicyResolver) *Collector {
	return &Collector{store: s, snapshots: snapshots, policies: policies}
}

// RunOnce walks every run's keys and truncates chains per policy. It
// returns the number of chain entries dropped.
func (c *Collector) RunOnce(now int64) int {
	floor, active := c.snapshots.OldestPinnedVersion()
	dropped := 0

	for _, run := range c.store.Runs() {
		policy := c.policies.PolicyFor(run)
		c.store.ForEachKeyInRun(run, func(k key.Key, head *store.Entry) {
			dropped += c.pruneChain(k, policy, floor, active, now)
		})
	}
	return dropped
}

func (c *Collector) pruneChain(k key.Key, policy Policy, floor uint64, floorActive bool, now int64) int {
	dropped := 0
	c.store.WithChainLocked(k, func(chain *store.Chain) {
		head := chain.Head()
		if head == nil {
			return
		}

		// lastKept ends up as the oldest entry that must survive;
		// truncation can only unlink the suffix after it, so an entry
		// the policy rejects but a kept entry or the snapshot floor
		// shields stays in the chain.
		var lastKept *store.Entry
		rank := 0
		for e := head; e != nil; e = e.Next() {
			if floorActive && e.GlobalVersion() <= floor {
				// A live snapshot may still resolve to this entry or
				// anything older in the chain; stop truncating here.
				lastKept = e
				break
			}
			if policy.Keep(rank, e.TimestampUTC(), now) {
				lastKept = e
			}
			rank++
		}

		// Count what truncation would actually unlink.
		cut := head
		if lastKept != nil {
			cut = lastKept.Next()
		}
		for e := cut; e != nil; e = e.Next() {
			dropped++
		}

		if dropped > 0 {
			chain.Truncate(lastKept)
		}
	})
	return dropped
}

// Package store implements Strata's sharded, version-chained primary
// store: per-run shards of keys, each key holding a newest-first chain
// of versioned values and tombstones.
package store

import (
	"strata/internal/value"
)

// VersionKind tags which counter produced a Version.
type VersionKind int

const (
	VersionTxnID VersionKind = iota
	VersionSequence
	VersionCounter
)

// Version is the logical version stamped on a chain entry and handed
// back to callers (the "version" in get/CAS results). It is distinct
// from the entry's GlobalVersion, which is always the MVCC visibility
// timestamp regardless of which VersionKind the primitive uses.
type Version struct {
	Kind VersionKind
	N    uint64
}

func (v Version) IsZero() bool { return v.N == 0 }

// Entry is one link in a key's version chain: either a value or a
// tombstone, never both.
type Entry struct {
	value        value.Value
	isTombstone  bool
	version      Version // logical version exposed to callers
	globalVer    uint64  // MVCC visibility timestamp (global counter at commit)
	txnID        uint64
	timestampUTC int64 // unix nanos
	next         *Entry
}

func NewValueEntry(v value.Value, ver Version, globalVer, txnID uint64, ts int64) *Entry {
	return &Entry{value: v, version: ver, globalVer: globalVer, txnID: txnID, timestampUTC: ts}
}

func NewTombstoneEntry(ver Version, globalVer, txnID uint64, ts int64) *Entry {
	return &Entry{isTombstone: true, version: ver, globalVer: globalVer, txnID: txnID, timestampUTC: ts}
}

func (e *Entry) IsTombstone() bool { return e.isTombstone }
func (e *Entry) Value() value.Value { return e.value }
func (e *Entry) Version() Version { return e.version }
func (e *Entry) GlobalVersion() uint64 { return e.globalVer }
func (e *Entry) TxnID() uint64 { return e.txnID }
func (e *Entry) TimestampUTC() int64 { return e.timestampUTC }
func (e *Entry) Next() *Entry { return e.next }

// Chain is the ordered, newest-first list of versions for one key.
// Not concurrency-safe on its own; callers hold the owning shard's
// lock. Every mutation already happens under a shard write-lock in the
// commit pipeline, so a per-chain lock would be redundant.
type Chain struct {
	head *Entry

	// trimmed and earliestRetained track retention GC's effect on this
	// chain: once Truncate has dropped anything, earliestRetained is
	// the oldest surviving entry's global version (0 if the whole chain
	// was cleared), and a history/get-at request for anything older is
	// no longer answerable.
	trimmed          bool
	earliestRetained uint64
}

func (c *Chain) Head() *Entry { return c.head }

// Trimmed reports whether retention GC has ever truncated this chain.
func (c *Chain) Trimmed() bool { return c.trimmed }

// EarliestRetained is the oldest global version this chain can still
// resolve, valid only when Trimmed is true.
func (c *Chain) EarliestRetained() uint64 { return c.earliestRetained }

// Push installs e as the new head. Strictly decreasing global
// versions head-to-tail is the caller's responsibility: the commit
// pipeline only ever pushes entries stamped with the just-allocated
// global version, which is always larger than any previously
// published version.
func (c *Chain) Push(e *Entry) {
	e.next = c.head
	c.head = e
}

// ResolveAt returns the newest entry whose global version is ≤ asOf,
// implementing snapshot resolution.
func (c *Chain) ResolveAt(asOf uint64) *Entry {
	for e := c.head; e != nil; e = e.next {
		if e.globalVer <= asOf {
			return e
		}
	}
	return nil
}

// Len counts the entries in the chain (used by GC/observability).
func (c *Chain) Len() int {
	n := 0
	for e := c.head; e != nil; e = e.next {
		n++
	}
	return n
}

// Truncate drops every entry strictly after keep (keep may be nil to
// clear the whole chain), used by retention/GC. Every
// call marks the chain trimmed: a caller only invokes Truncate when it
// has actually decided to drop at least one entry.
func (c *Chain) Truncate(keep *Entry) {
	c.trimmed = true
	if keep == nil {
		c.head = nil
		c.earliestRetained = 0
		return
	}
	keep.next = nil
	c.earliestRetained = keep.GlobalVersion()
}

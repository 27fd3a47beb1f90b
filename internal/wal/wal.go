package wal

import (
	"os"
	"sync"
	"time"
)

// DurabilityMode selects the fsync policy.
type DurabilityMode int

const (
	// None bypasses the WAL entirely; for tests and ephemeral caches.
	None DurabilityMode = iota
	// Batched fsyncs every N commits or every T milliseconds, whichever
	// comes first. The default mode.
	Batched
	// Strict fsyncs on every commit.
	Strict
)

// BatchOptions tunes the Batched-mode fsync batcher.
type BatchOptions struct {
	EveryNCommits int
	EveryInterval time.Duration
}

func DefaultBatchOptions() BatchOptions {
	return BatchOptions{EveryNCommits: 64, EveryInterval: 5 * time.Millisecond}
}

// WAL is the append-only record log backing every committed write.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	mode DurabilityMode
	opts BatchOptions

	// fsyncCh carries one entry per appended commit (or per record
	// outside a commit group, such as a checkpoint): nil from Append
	// (a count-only notification) or a reply channel from Flush, which
	// forces an immediate sync and waits for its result.
	fsyncCh chan chan error
	closeCh chan struct{}
	wg      sync.WaitGroup

	onBatchedFsyncError func(error)
}

// Options configures WAL construction.
type Options struct {
	Mode                 DurabilityMode
	Batch                BatchOptions
	OnBatchedFsyncError func(error) // required for Batched mode: log and panic
}

// Open opens (creating if absent) the WAL file at path. O_APPEND keeps
// every write at the current end of the log, so reopening an existing
// database appends after the records recovery just replayed instead of
// clobbering them.
func Open(path string, opts Options) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	if opts.Batch == (BatchOptions{}) {
		opts.Batch = DefaultBatchOptions()
	}
	w := &WAL{
		file:                 f,
		mode:                 opts.Mode,
		opts:                 opts.Batch,
		onBatchedFsyncError:  opts.OnBatchedFsyncError,
	}
	if w.mode == Batched {
		w.fsyncCh = make(chan chan error, 128)
		w.closeCh = make(chan struct{})
		w.wg.Add(1)
		go w.fsyncBatcher()
	}
	return w, nil
}

// fsyncBatcher runs on a dedicated goroutine in Batched mode,
// coalescing fsync requests across commits.
func (w *WAL) fsyncBatcher() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.opts.EveryInterval)
	defer ticker.Stop()

	var waiters []chan error
	pending := 0
	flush := func() {
		err := w.file.Sync()
		if err != nil && w.onBatchedFsyncError != nil {
			// WAL errors during a Batched flush must be loud; silent
			// data loss here would violate the mode's contract.
			w.onBatchedFsyncError(err)
		}
		for _, ch := range waiters {
			ch <- err
			close(ch)
		}
		waiters = nil
		pending = 0
	}

	for {
		select {
		case ch := <-w.fsyncCh:
			pending++
			if ch != nil {
				waiters = append(waiters, ch)
			}
			// Flush requests sync immediately; plain appends coalesce
			// until the commit count or the ticker triggers.
			if ch != nil || pending >= w.opts.EveryNCommits {
				flush()
			}
		case <-ticker.C:
			if pending > 0 {
				flush()
			}
		case <-w.closeCh:
			flush()
			return
		}
	}
}

// Append writes a record to the log. In Strict mode it fsyncs before
// returning; in Batched mode it returns as soon as the bytes are in
// the OS buffer, leaving the fsync to the batcher (every N commits or
// T ms, whichever comes first); in None mode it is a no-op that
// returns immediately.
func (w *WAL) Append(r Record) error {
	if w.mode == None {
		return nil
	}

	frame := EncodeFrame(r)

	w.mu.Lock()
	_, err := w.file.Write(frame)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	switch w.mode {
	case Strict:
		return w.file.Sync()
	case Batched:
		// Begin/Write/Delete records are always followed by their
		// group's CommitTxn, whose notification covers them, so only
		// commits (and records outside a group) count toward
		// EveryNCommits.
		if r.Kind == KindBeginTxn || r.Kind == KindWrite || r.Kind == KindDelete {
			return nil
		}
		// Count-only notification; if the batcher's queue is full a
		// flush is already overdue and the ticker will cover this
		// commit.
		select {
		case w.fsyncCh <- nil:
		default:
		}
	}
	return nil
}

// Flush forces any buffered durability barrier to complete immediately,
// regardless of mode (a no-op under None).
func (w *WAL) Flush() error {
	switch w.mode {
	case None:
		return nil
	case Strict:
		return w.file.Sync()
	case Batched:
		ch := make(chan error, 1)
		w.fsyncCh <- ch
		return <-ch
	}
	return nil
}

// Size returns the current WAL file size in bytes.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// TruncateTo truncates the WAL file to offset (used after a checkpoint).
func (w *WAL) TruncateTo(offset int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	_, err := w.file.Seek(offset, 0)
	return err
}

// Close flushes and closes the WAL file.
func (w *WAL) Close() error {
	if w.mode == Batched {
		close(w.closeCh)
		w.wg.Wait()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

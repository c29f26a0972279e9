package checkpoint

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
)

// DefaultFlushEvery is the generation.checkpoint_every default
const DefaultFlushEvery = 50

// FlushFunc is called after every successful flush with the number of
// records written and the running total
type FlushFunc func(written, total int)

// Buffer collects finished records and appends them to the store once
// enough are pending
type Buffer struct {
	store   *Store
	every   int
	onFlush FlushFunc

	mu      sync.Mutex
	pending []domain.Record
	total   int
}

// NewBuffer creates a buffer that flushes every n records. n <= 0 uses
// DefaultFlushEvery.
func NewBuffer(store *Store, n int, onFlush FlushFunc) *Buffer {
	if n <= 0 {
		n = DefaultFlushEvery
	}
	return &Buffer{store: store, every: n, onFlush: onFlush}
}

// Add queues rec and flushes when the threshold is reached
func (b *Buffer) Add(_ context.Context, rec domain.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, rec)
	if len(b.pending) < b.every {
		return nil
	}
	return b.flushLocked()
}

// Flush writes every pending record
func (b *Buffer) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

// Pending is the number of records not yet written
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Written is the number of records written by this buffer
func (b *Buffer) Written() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *Buffer) flushLocked() error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.store.Append(b.pending); err != nil {
		// keep the records queued for the next flush
		return err
	}
	n := len(b.pending)
	b.total += n
	b.pending = b.pending[:0]
	if b.onFlush != nil {
		b.onFlush(n, b.total)
	}
	return nil
}

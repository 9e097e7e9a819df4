package batcher

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Batcher collects items and flushes them based on size or time thresholds.
// The consumer binary uses it to turn a message-at-a-time stream into bounded
// batches for all-or-nothing inserts.
type Batcher[T any] struct {
	mu        sync.Mutex
	buffer    []T
	maxSize   int
	interval  time.Duration
	flushFn   func(context.Context, []T) error
	baseCtx   context.Context
	stop      chan struct{}
	wg        sync.WaitGroup
	lastError error
}

// New creates a batcher whose background ticker flushes under baseCtx.
func New[T any](ctx context.Context, maxSize int, interval time.Duration, flushFn func(context.Context, []T) error) *Batcher[T] {
	b := &Batcher[T]{
		maxSize:  maxSize,
		interval: interval,
		flushFn:  flushFn,
		baseCtx:  ctx,
		stop:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Add queues an item for batching. If the size threshold is met the batch is
// flushed synchronously and any flush error is returned to the caller.
func (b *Batcher[T]) Add(ctx context.Context, item T) error {
	b.mu.Lock()
	b.buffer = append(b.buffer, item)
	shouldFlush := len(b.buffer) >= b.maxSize
	var batch []T
	if shouldFlush {
		batch = b.detach()
	}
	b.mu.Unlock()
	if shouldFlush {
		return b.runFlush(ctx, batch)
	}
	return nil
}

// Flush forces a flush of the accumulated items.
func (b *Batcher[T]) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.detach()
	b.mu.Unlock()
	return b.runFlush(ctx, batch)
}

// Close stops the background ticker and flushes remaining items.
func (b *Batcher[T]) Close() error {
	close(b.stop)
	b.wg.Wait()
	return b.Flush(b.baseCtx)
}

// LastError returns the last flush error encountered by the background ticker.
func (b *Batcher[T]) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastError
}

func (b *Batcher[T]) loop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := b.Flush(b.baseCtx); err != nil {
				b.mu.Lock()
				b.lastError = err
				b.mu.Unlock()
			}
		case <-b.stop:
			return
		}
	}
}

func (b *Batcher[T]) detach() []T {
	if len(b.buffer) == 0 {
		return nil
	}
	batch := make([]T, len(b.buffer))
	copy(batch, b.buffer)
	b.buffer = b.buffer[:0]
	return batch
}

func (b *Batcher[T]) runFlush(ctx context.Context, batch []T) error {
	if len(batch) == 0 {
		return nil
	}
	if b.flushFn == nil {
		return errors.New("batcher: no flush function configured")
	}
	return b.flushFn(ctx, batch)
}

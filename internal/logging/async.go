package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// AsyncHandler decouples hot paths from log I/O: Handle enqueues the
// record onto a bounded queue consumed by one background worker. When the
// queue is full the record is dropped and counted rather than blocking
// the request path.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

type asyncCore struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan asyncItem
	dropped atomic.Uint64
	done    chan struct{}
}

type asyncItem struct {
	h   slog.Handler
	rec slog.Record
}

func NewAsync(inner slog.Handler, queueSize int) *AsyncHandler {
	if queueSize <= 0 {
		queueSize = 1024
	}
	core := &asyncCore{
		ch:   make(chan asyncItem, queueSize),
		done: make(chan struct{}),
	}
	go core.run()
	return &AsyncHandler{inner: inner, core: core}
}

func (c *asyncCore) run() {
	for it := range c.ch {
		_ = it.h.Handle(context.Background(), it.rec)
	}
	close(c.done)
}

func (c *asyncCore) enqueue(it asyncItem) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.ch <- it:
	default:
		c.dropped.Add(1)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error {
	h.core.enqueue(asyncItem{h: h.inner, rec: rec.Clone()})
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// Dropped reports how many records were discarded under backpressure.
func (h *AsyncHandler) Dropped() uint64 { return h.core.dropped.Load() }

// Close stops the worker after draining queued records. Records handled
// after Close are dropped.
func (h *AsyncHandler) Close() {
	h.core.mu.Lock()
	if !h.core.closed {
		h.core.closed = true
		close(h.core.ch)
	}
	h.core.mu.Unlock()
	<-h.core.done
}

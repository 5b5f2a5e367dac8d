package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer flushes and stops a logger's background work.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler hands records to a pool of workers through a buffered
// channel. When the buffer is full, records below Warn are dropped and
// counted; Warn and above wait for room, since rejected votes, denied
// authorizations and rollbacks are logged at those levels.
type AsyncHandler struct {
	inner slog.Handler
	q     *asyncQueue
}

// asyncQueue is shared by an AsyncHandler and every handler derived from it.
type asyncQueue struct {
	ch      chan asyncRecord
	wg      sync.WaitGroup
	dropped atomic.Int64
	closed  atomic.Bool
}

type asyncRecord struct {
	h   slog.Handler
	rec slog.Record
}

// NewAsyncHandler creates an AsyncHandler with the given buffer size and worker count.
func NewAsyncHandler(inner slog.Handler, bufSize, workers int) *AsyncHandler {
	if workers < 1 {
		workers = 1
	}
	q := &asyncQueue{ch: make(chan asyncRecord, bufSize)}
	for range workers {
		q.wg.Add(1)
		go q.drain()
	}
	return &AsyncHandler{inner: inner, q: q}
}

func (q *asyncQueue) drain() {
	defer q.wg.Done()
	for r := range q.ch {
		_ = r.h.Handle(context.Background(), r.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Records handled after Close are written
// synchronously.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.q.closed.Load() {
		return h.inner.Handle(ctx, rec)
	}
	r := asyncRecord{h: h.inner, rec: rec.Clone()}
	if rec.Level >= slog.LevelWarn {
		select {
		case h.q.ch <- r:
		case <-ctx.Done():
			h.q.dropped.Add(1)
		}
		return nil
	}
	select {
	case h.q.ch <- r:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler with attrs that shares this handler's queue.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

// WithGroup returns a handler with the group that shares this handler's queue.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close drains the buffer, stops the workers and, if any records were
// dropped, writes one warning through the inner handler. It must be
// called once, after the last concurrent Handle returns.
func (h *AsyncHandler) Close() {
	h.q.closed.Store(true)
	close(h.q.ch)
	h.q.wg.Wait()
	if n := h.q.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "async log records dropped", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}

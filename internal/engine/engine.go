// Package engine implements BLINK's two-tier StorageEngine: write-through
// to an in-memory LRUCache, write-behind to a durable.Map via a bounded
// queue serviced by one background writer goroutine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/blinkdb/blink/internal/cache"
	"github.com/blinkdb/blink/internal/durable"
	"github.com/blinkdb/blink/internal/singleflight"
)

const (
	// MaxKeyLen is the largest accepted key length, in bytes.
	MaxKeyLen = 256
	// MaxValueLen is the largest accepted value length, in bytes.
	MaxValueLen = 1024
	// DefaultQueueCapacity bounds the write-behind queue before Set
	// degrades to a synchronous durable write (§5 back-pressure policy).
	DefaultQueueCapacity = 4096
)

// Validation errors. netfront maps these to RESP "-ERR <message>" replies.
var (
	ErrEmptyValue   = errors.New("empty value not allowed")
	ErrKeyTooLong   = fmt.Errorf("key exceeds %d bytes", MaxKeyLen)
	ErrValueTooLong = fmt.Errorf("value exceeds %d bytes", MaxValueLen)
	ErrInvalidKey   = errors.New("key must not contain '=' or newline")
	ErrInvalidValue = errors.New("value must not contain newline")
)

var errNotFoundInDurable = errors.New("engine: not found in durable map")

// Metrics exposes engine-level observability hooks, distinct from the
// cache's own Metrics (which report hit/miss/eviction on the front tier).
type Metrics interface {
	QueueDepth(n int)
	WriteDropped()
	SyncFallback()
}

// NoopMetrics implements Metrics by doing nothing.
type NoopMetrics struct{}

func (NoopMetrics) QueueDepth(int)  {}
func (NoopMetrics) WriteDropped()   {}
func (NoopMetrics) SyncFallback()   {}

var _ Metrics = NoopMetrics{}

// Options configures an Engine.
type Options struct {
	// QueueCapacity bounds the write-behind queue. <= 0 means
	// DefaultQueueCapacity.
	QueueCapacity int

	Metrics Metrics
	Logger  zerolog.Logger
}

// Engine is BLINK's StorageEngine. Safe for concurrent use by multiple
// callers, though the specified deployment drives it from a single
// front-end worker.
type Engine struct {
	cache   *cache.Cache
	durable *durable.Map
	queue   *writeQueue
	sf      singleflight.Group[string, string]
	metrics Metrics
	log     zerolog.Logger

	writerDone chan struct{}

	shutdownOnce sync.Once
}

// New constructs an Engine around an already-open cache and durable map,
// and starts its background writer.
func New(c *cache.Cache, d *durable.Map, opt Options) *Engine {
	if opt.QueueCapacity <= 0 {
		opt.QueueCapacity = DefaultQueueCapacity
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}

	e := &Engine{
		cache:      c,
		durable:    d,
		queue:      newWriteQueue(opt.QueueCapacity),
		metrics:    opt.Metrics,
		log:        opt.Logger,
		writerDone: make(chan struct{}),
	}
	go e.runWriter()
	return e
}

// Set validates (k, v) and writes through to the cache; if the write-behind
// queue accepts the request it returns immediately, otherwise it degrades
// to a synchronous durable write (the back-pressure policy this spec picks:
// degrade, not block).
func (e *Engine) Set(key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}

	e.cache.Put(key, value)

	if e.queue.Enqueue(key, value) {
		e.metrics.QueueDepth(e.queue.Len())
		return nil
	}

	e.metrics.SyncFallback()
	if err := e.durable.Put(key, value); err != nil {
		e.log.Error().Err(err).Str("key", key).Msg("engine: synchronous durable write failed")
		return err
	}
	return nil
}

// Get looks up key in the cache, falling back to the durable map on a
// miss. A durable hit is promoted into the cache (possibly evicting a
// victim) before returning. Concurrent misses for the same key share a
// single durable-map read via singleflight, avoiding a thundering herd
// against disk.
func (e *Engine) Get(key string) (string, bool, error) {
	if v, ok := e.cache.Get(key); ok {
		return v, true, nil
	}

	v, err := e.sf.Do(context.Background(), key, func() (string, error) {
		if val, ok := e.durable.Get(key); ok {
			return val, nil
		}
		return "", errNotFoundInDurable
	})
	if err != nil {
		if errors.Is(err, errNotFoundInDurable) {
			return "", false, nil
		}
		return "", false, err
	}

	e.cache.Put(key, v)
	return v, true, nil
}

// Del removes key from both tiers. Before the synchronous durable removal,
// every write queued for key is drained and discarded so a SET that was
// accepted before this DEL cannot be applied by the writer afterward
// (Design Notes §9 — the ordering hole the source leaves open).
func (e *Engine) Del(key string) (bool, error) {
	e.queue.DrainKey(key)

	inCache := e.cache.Remove(key)
	inDurable, err := e.durable.Remove(key)
	if err != nil {
		return false, err
	}
	return inCache || inDurable, nil
}

// Clear empties both tiers and discards (not drains) any pending writes,
// per the mandatory Clear() fix: the durable file is truncated in place
// rather than reopened over stale bytes.
func (e *Engine) Clear() error {
	e.queue.DiscardAll()
	e.cache.Clear()
	return e.durable.Truncate()
}

// Flush blocks until every write enqueued before this call has been
// applied (or dropped-and-logged) by the background writer.
func (e *Engine) Flush(ctx context.Context) error {
	done := e.queue.Barrier()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting new writes, drains the queue to completion,
// joins the writer, and closes the durable map. Idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	var shutdownErr error
	e.shutdownOnce.Do(func() {
		e.queue.Close()
		select {
		case <-e.writerDone:
		case <-ctx.Done():
			shutdownErr = ctx.Err()
			return
		}
		shutdownErr = e.durable.Close()
	})
	return shutdownErr
}

func (e *Engine) runWriter() {
	defer close(e.writerDone)
	for {
		item, ok := e.queue.Pop()
		if !ok {
			return
		}
		if item.barrier != nil {
			continue // Pop has already closed it
		}
		if err := e.durable.Put(item.key, item.value); err != nil {
			e.log.Error().Err(err).Str("key", item.key).Msg("engine: dropping failed background write")
			e.metrics.WriteDropped()
		}
		e.metrics.QueueDepth(e.queue.Len())
	}
}

func validate(key, value string) error {
	if len(value) == 0 {
		return ErrEmptyValue
	}
	if len(key) > MaxKeyLen {
		return ErrKeyTooLong
	}
	if len(value) > MaxValueLen {
		return ErrValueTooLong
	}
	if strings.ContainsAny(key, "=\n") {
		return ErrInvalidKey
	}
	if strings.Contains(value, "\n") {
		return ErrInvalidValue
	}
	return nil
}

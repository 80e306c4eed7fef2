// Package dedupe tracks idempotency keys of accepted submissions.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// Deduper maps idempotency keys to the job that first claimed them.
type Deduper interface {
	// Claim atomically records key -> jobID unless key is already held.
	// When it is, Claim returns the owning job id and true.
	Claim(ctx context.Context, key, jobID string) (string, bool)

	// Release forgets key only while it is still bound to jobID, so a
	// stale release never drops a newer owner's claim.
	Release(ctx context.Context, key, jobID string)

	Size() int64
}

type entry struct {
	key   string
	jobID string
}

// inMemoryDeduper keeps keys in insertion order and evicts the oldest once
// maxSize is reached. maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		keys:    make(map[string]*list.Element),
		order:   list.New(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

func (d *inMemoryDeduper) Claim(_ context.Context, key, jobID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok {
		return el.Value.(*entry).jobID, true
	}

	if d.maxSize > 0 {
		for d.order.Len() >= d.maxSize {
			d.evictOldest()
		}
	}

	d.keys[key] = d.order.PushBack(&entry{key: key, jobID: jobID})
	d.size.Store(int64(d.order.Len()))
	return jobID, false
}

func (d *inMemoryDeduper) Release(_ context.Context, key, jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.keys[key]; ok && el.Value.(*entry).jobID == jobID {
		d.order.Remove(el)
		delete(d.keys, key)
		d.size.Store(int64(d.order.Len()))
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	front := d.order.Front()
	if front == nil {
		return
	}
	d.order.Remove(front)
	delete(d.keys, front.Value.(*entry).key)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

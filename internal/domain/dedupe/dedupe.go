// Package dedupe tracks evaluation ids that were already accepted.
package dedupe

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxSize = 50000

// Deduper records seen evaluation ids to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord removes an id so that it can be submitted again. It is used
	// when an accepted evaluation could not be queued.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// lruDeduper remembers the most recently accepted ids; the oldest are evicted
// once the bound is reached.
type lruDeduper struct {
	maxSize int
	seen    *lru.Cache[string, struct{}]
}

// NewInMemoryDeduper creates a bounded in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &lruDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}

	// lru.New only errors on a non-positive size, which options reject.
	seen, _ := lru.New[string, struct{}](d.maxSize)
	d.seen = seen
	return d
}

func (d *lruDeduper) SeenAndRecord(_ context.Context, id string) bool {
	found, _ := d.seen.ContainsOrAdd(id, struct{}{})
	return found
}

func (d *lruDeduper) Unrecord(_ context.Context, id string) {
	d.seen.Remove(id)
}

func (d *lruDeduper) Size() int64 {
	return int64(d.seen.Len())
}

// Package ledger implements the stock ledger: per-product counters that
// guard admission, plus the sticky exhaustion filter.
package ledger

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter sizing assumes on the order of a thousand flash-sale products with
// a 1% acceptable false-positive rate.
const (
	filterCapacity = 1000
	filterFPRate   = 0.01
)

// Ledger is the authoritative per-product stock counter plus the exhaustion
// fast path. TryDecrement is the sole guard against oversell.
type Ledger interface {
	SetStock(ctx context.Context, productID string, stock int64) error
	Stock(ctx context.Context, productID string) (int64, error)
	// TryDecrement atomically takes one unit if stock is still positive.
	// It is linearizable across concurrent callers and never drives the
	// counter below zero.
	TryDecrement(ctx context.Context, productID string) (bool, error)
	// Increment restores one unit, used on cancellation and timeout.
	Increment(ctx context.Context, productID string) error
	// MarkExhausted records that the product was observed sold out. Entries
	// are never removed: once marked, the product stays fast-rejected for
	// the lifetime of the process.
	MarkExhausted(productID string)
	// IsLikelyExhausted has no false negatives for marked products but may
	// return true for unrelated ids.
	IsLikelyExhausted(productID string) bool
}

// exhaustionFilter wraps the bloom filter with a lock; the underlying filter
// is not safe for concurrent mutation.
type exhaustionFilter struct {
	mu sync.RWMutex
	bf *bloom.BloomFilter
}

func newExhaustionFilter() *exhaustionFilter {
	return &exhaustionFilter{bf: bloom.NewWithEstimates(filterCapacity, filterFPRate)}
}

func (f *exhaustionFilter) add(productID string) {
	f.mu.Lock()
	f.bf.AddString(productID)
	f.mu.Unlock()
}

func (f *exhaustionFilter) mightContain(productID string) bool {
	f.mu.RLock()
	ok := f.bf.TestString(productID)
	f.mu.RUnlock()
	return ok
}

// Memory is the in-process Ledger used by tests and the default simulation.
type Memory struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
	filter   *exhaustionFilter
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		counters: make(map[string]*atomic.Int64),
		filter:   newExhaustionFilter(),
	}
}

func (m *Memory) counter(productID string) *atomic.Int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[productID]
	if !ok {
		c = &atomic.Int64{}
		m.counters[productID] = c
	}
	return c
}

// SetStock initializes the counter for a product.
func (m *Memory) SetStock(_ context.Context, productID string, stock int64) error {
	m.counter(productID).Store(stock)
	return nil
}

// Stock returns the current counter value.
func (m *Memory) Stock(_ context.Context, productID string) (int64, error) {
	return m.counter(productID).Load(), nil
}

// TryDecrement runs a CAS loop: the decrement only lands when the observed
// value was positive, so the counter is never observed negative.
func (m *Memory) TryDecrement(_ context.Context, productID string) (bool, error) {
	c := m.counter(productID)
	for {
		cur := c.Load()
		if cur <= 0 {
			return false, nil
		}
		if c.CompareAndSwap(cur, cur-1) {
			return true, nil
		}
	}
}

// Increment restores one unit unconditionally.
func (m *Memory) Increment(_ context.Context, productID string) error {
	m.counter(productID).Add(1)
	return nil
}

// MarkExhausted adds the product to the exhaustion filter.
func (m *Memory) MarkExhausted(productID string) { m.filter.add(productID) }

// IsLikelyExhausted tests the exhaustion filter.
func (m *Memory) IsLikelyExhausted(productID string) bool {
	return m.filter.mightContain(productID)
}

// Package cache provides the optimistic state collection used by admin
// mutation paths: a tentative change is applied to the in-memory working
// set immediately, and the prior snapshot is either discarded on remote
// confirmation or restored on failure.
package cache

import "sync"

// Collection is an optimistic in-memory working set of records keyed by K.
// Exactly one outstanding snapshot is retained: a second Apply before the
// first is confirmed or rolled back overwrites it, so callers must
// serialize conflicting mutations on the same collection.
type Collection[K comparable, T any] struct {
	mu       sync.Mutex
	keyOf    func(T) K
	items    []T
	snapshot []T
	pending  bool
	notify   func(message string)
}

// New creates a collection. keyOf extracts a record's key; notify receives
// the user-facing message attached to each apply/rollback (may be nil).
func New[K comparable, T any](keyOf func(T) K, notify func(string)) *Collection[K, T] {
	if notify == nil {
		notify = func(string) {}
	}
	return &Collection[K, T]{keyOf: keyOf, notify: notify}
}

// Load replaces the working set, dropping any outstanding snapshot.
func (c *Collection[K, T]) Load(items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]T(nil), items...)
	c.snapshot = nil
	c.pending = false
}

// Items returns a copy of the current working set.
func (c *Collection[K, T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

// Get returns the record with the given key.
func (c *Collection[K, T]) Get(key K) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range c.items {
		if c.keyOf(item) == key {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Apply snapshots the working set, merges the patch into the matching
// record in place, and surfaces message. The change is tentative until
// Confirm or Rollback.
func (c *Collection[K, T]) Apply(key K, patch func(T) T, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.takeSnapshot()
	for i, item := range c.items {
		if c.keyOf(item) == key {
			c.items[i] = patch(item)
			break
		}
	}
	c.notify(message)
}

// Remove is the delete-sentinel form of Apply: it snapshots and drops the
// matching record.
func (c *Collection[K, T]) Remove(key K, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.takeSnapshot()
	for i, item := range c.items {
		if c.keyOf(item) == key {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	c.notify(message)
}

// Confirm discards the outstanding snapshot: the optimistic change is now
// authoritative.
func (c *Collection[K, T]) Confirm(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.pending = false
}

// Rollback restores the snapshot taken by the last Apply/Remove and
// surfaces errMessage. A rollback with no outstanding snapshot is a no-op.
func (c *Collection[K, T]) Rollback(key K, errMessage string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.pending {
		return
	}
	c.items = c.snapshot
	c.snapshot = nil
	c.pending = false
	c.notify(errMessage)
}

func (c *Collection[K, T]) takeSnapshot() {
	c.snapshot = append([]T(nil), c.items...)
	c.pending = true
}

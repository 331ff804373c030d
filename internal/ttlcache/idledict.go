package ttlcache

import (
	"sync"
	"time"
)

// IdleExpiringDict holds a single map value that is cleared in its entirety
// once the map has gone untouched for longer than its TTL. Unlike
// RefreshMap, expiry is a property of the whole container, not of
// individual keys: any Set call refreshes the idle clock for every key at
// once. This matches the hub's "master process info" slot, which should
// vanish as a whole once the reporting worker stops sending updates —
// a partially-stale master record is worse than an empty one.
type IdleExpiringDict[K comparable, V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	data       map[K]V
	lastTouch  time.Time
}

// NewIdleExpiringDict creates an empty IdleExpiringDict with the given idle TTL.
func NewIdleExpiringDict[K comparable, V any](ttl time.Duration) *IdleExpiringDict[K, V] {
	return &IdleExpiringDict[K, V]{
		ttl:  ttl,
		data: make(map[K]V),
	}
}

// Set replaces the entire dict contents and resets the idle clock.
func (d *IdleExpiringDict[K, V]) Set(data map[K]V) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = data
	d.lastTouch = time.Now()
}

// Get returns a copy of the dict contents, or an empty map if it has gone
// idle past its TTL.
func (d *IdleExpiringDict[K, V]) Get() map[K]V {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lastTouch.IsZero() || time.Since(d.lastTouch) > d.ttl {
		return map[K]V{}
	}

	out := make(map[K]V, len(d.data))
	for k, v := range d.data {
		out[k] = v
	}
	return out
}

// Empty reports whether the dict is currently empty or has expired.
func (d *IdleExpiringDict[K, V]) Empty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastTouch.IsZero() || time.Since(d.lastTouch) > d.ttl {
		return true
	}
	return len(d.data) == 0
}

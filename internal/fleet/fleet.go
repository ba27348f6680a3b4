// Package fleet implements the server's test-id -> session map (§4.6): a
// capped registry with post-close lingering, so a session survives a
// little past its control channel closing to answer a late
// GetMeasurements.
package fleet

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jellydator/ttlcache/v3"
)

// DefaultCapacity is the hard cap on concurrent sessions (§4.6).
const DefaultCapacity = 64

// LingerDuration is how long a session remains reachable after its
// control channel closes, to answer a late GetMeasurements (§4.6).
const LingerDuration = 30 * time.Second

// Map is a TestId -> session registry for session type T. Sessions are
// held indefinitely until Retire is called, at which point they linger
// for LingerDuration before OnEvict fires and the entry is gone.
type Map[T any] struct {
	cache *ttlcache.Cache[string, T]

	mu       sync.Mutex
	capacity int
	active   map[string]struct{}
}

// New returns a Map capped at capacity concurrent active sessions. onEvict
// is invoked once a retired session's linger period expires.
func New[T any](capacity int, onEvict func(id string, v T)) *Map[T] {
	cache := ttlcache.New[string, T](
		ttlcache.WithDisableTouchOnHit[string, T](),
	)
	m := &Map[T]{
		cache:    cache,
		capacity: capacity,
		active:   make(map[string]struct{}),
	}
	cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, T]) {
		log.Debug("session evicted", "id", item.Key(), "reason", reason)
		if onEvict != nil {
			onEvict(item.Key(), item.Value())
		}
	})
	go cache.Start()
	return m
}

// Insert adds a new active session under id. It returns overload=true
// and does not insert if the fleet is at capacity (§4.6).
func (m *Map[T]) Insert(id string, v T) (overload bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) >= m.capacity {
		return true
	}
	m.active[id] = struct{}{}
	m.cache.Set(id, v, ttlcache.NoTTL)
	return false
}

// Get looks up an active or lingering session by id.
func (m *Map[T]) Get(id string) (T, bool) {
	item := m.cache.Get(id)
	if item == nil {
		var zero T
		return zero, false
	}
	return item.Value(), true
}

// Retire marks a session's control channel as closed: it stops counting
// against capacity and begins its LingerDuration countdown to eviction.
func (m *Map[T]) Retire(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	item := m.cache.Get(id)
	if item == nil {
		return
	}
	m.cache.Set(id, item.Value(), LingerDuration)
}

// Remove deletes a session immediately, skipping the linger period.
func (m *Map[T]) Remove(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	m.cache.Delete(id)
}

// Len returns the number of currently active (non-lingering) sessions.
func (m *Map[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Stop shuts down the background eviction loop.
func (m *Map[T]) Stop() {
	m.cache.Stop()
}

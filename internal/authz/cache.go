package authz

import (
	"slices"
	"sync"
	"time"
)

// TeamCache is an optional short-TTL cache of user -> team IDs, consulted by
// LoadActor to save one query per guarded request. Memberships changed
// through this process are invalidated immediately; changes made by other
// replicas become visible after at most one TTL.
//
// A nil cache, or one built with ttl <= 0, caches nothing.
type TeamCache struct {
	mu      sync.RWMutex
	entries map[int64]cachedTeams
	ttl     time.Duration
	done    chan struct{}
}

type cachedTeams struct {
	teams     []int64
	expiresAt time.Time
}

// NewTeamCache creates a cache with the given TTL. Call Close to stop the
// background eviction goroutine.
func NewTeamCache(ttl time.Duration) *TeamCache {
	c := &TeamCache{
		entries: make(map[int64]cachedTeams),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go c.evictLoop()
	}
	return c
}

func (c *TeamCache) enabled() bool { return c != nil && c.ttl > 0 }

// Get returns a copy of the cached team set and true on a fresh hit.
func (c *TeamCache) Get(userID int64) ([]int64, bool) {
	if !c.enabled() {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return slices.Clone(entry.teams), true
}

// Set stores the team set for userID.
func (c *TeamCache) Set(userID int64, teams []int64) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[userID] = cachedTeams{
		teams:     slices.Clone(teams),
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops the entry for userID.
func (c *TeamCache) Invalidate(userID int64) {
	if !c.enabled() {
		return
	}
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

// Close stops the background eviction goroutine.
func (c *TeamCache) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *TeamCache) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *TeamCache) evictExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
		}
	}
}

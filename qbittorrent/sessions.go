package qbittorrent

import (
	"sync"
	"time"
)

// DefaultSessionTTL is how long a cached session is trusted after login.
// There is no sliding renewal; a session is used as-is until a forwarded
// call finds it expired or rejected.
const DefaultSessionTTL = 30 * time.Minute

type session struct {
	// cookie is the remote's session cookie ("SID=..."). Empty means the
	// instance authenticated via skip-auth and no cookie is replayed.
	cookie  string
	expires time.Time
}

// SessionCache holds one live session per instance id.
//
// Mutations are single-key and the lock is never held across a network
// call, so two proxied calls racing to refresh the same expired session may
// both log in; the cache tolerates that redundant login rather than
// serializing all proxy traffic.
type SessionCache struct {
	mu       sync.RWMutex
	sessions map[int64]session
}

// NewSessionCache creates an empty cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{sessions: make(map[int64]session)}
}

// Get returns the cached cookie for an instance. Expired entries are
// treated as absent; no background sweep runs.
func (c *SessionCache) Get(instanceID int64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.sessions[instanceID]
	if !ok || time.Now().After(s.expires) {
		return "", false
	}
	return s.cookie, true
}

// Set stores a session for an instance. An empty cookie is a valid entry
// and records that the instance needs no credential header.
func (c *SessionCache) Set(instanceID int64, cookie string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[instanceID] = session{cookie: cookie, expires: time.Now().Add(ttl)}
}

// Invalidate deletes an instance's session outright so stale state cannot
// be reused after a rejected or failed re-authentication.
func (c *SessionCache) Invalidate(instanceID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, instanceID)
}

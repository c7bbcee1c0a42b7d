package authn

import (
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long a resolution may be served without hitting
// the database again. Entries never outlive the token's own expiry.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	principal Principal
	expiresAt time.Time
}

// SessionCache memoizes verified token resolutions keyed by the raw token
// string. It is per-process state; a multi-instance deployment would swap in
// a shared key-value store behind the same interface.
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionCache creates a cache with the given entry TTL (DefaultCacheTTL
// when non-positive).
func NewSessionCache(ttl time.Duration) *SessionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &SessionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns a fresh cached resolution for the token, if any. Expired
// entries are removed lazily.
func (c *SessionCache) Get(rawToken string) (Principal, bool) {
	c.mu.RLock()
	entry, ok := c.entries[rawToken]
	c.mu.RUnlock()
	if !ok {
		return Principal{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, rawToken)
		c.mu.Unlock()
		return Principal{}, false
	}
	return entry.principal, true
}

// Put caches a resolution. tokenExpiresAt caps the entry lifetime so a
// resolution is never served past the token's own expiry.
func (c *SessionCache) Put(rawToken string, principal Principal, tokenExpiresAt time.Time) {
	expires := c.now().Add(c.ttl)
	if !tokenExpiresAt.IsZero() && tokenExpiresAt.Before(expires) {
		expires = tokenExpiresAt
	}
	if !expires.After(c.now()) {
		return
	}
	c.mu.Lock()
	c.entries[rawToken] = cacheEntry{principal: principal, expiresAt: expires}
	c.mu.Unlock()
}

// Invalidate drops the cached resolution for one token.
func (c *SessionCache) Invalidate(rawToken string) {
	c.mu.Lock()
	delete(c.entries, rawToken)
	c.mu.Unlock()
}

// InvalidateEmail drops every cached resolution for the given email. Called
// on any membership mutation so a revoked or re-scoped member does not keep
// a stale role until natural expiry.
func (c *SessionCache) InvalidateEmail(email string) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return
	}
	c.mu.Lock()
	for key, entry := range c.entries {
		if strings.ToLower(entry.principal.Email) == email {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// InvalidateInstitution drops every cached resolution scoped to the given
// institution.
func (c *SessionCache) InvalidateInstitution(institutionID string) {
	if institutionID == "" {
		return
	}
	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.principal.InstitutionID == institutionID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Len reports the live entry count (expired entries may still be counted
// until their next lookup).
func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

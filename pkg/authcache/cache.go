// Package authcache implements component I: the in-memory mirror of
// mysql.user/mysql.db/mysql.tables_priv that services consult instead of
// round-tripping every authentication to a backend, per spec section
// 4.I.
package authcache

import "sync"

// UserEntry is one row of the (user, host, db, anydb, password) table
// spec section 4.I names.
type UserEntry struct {
	User     string
	Host     string
	DB       string
	AnyDB    bool
	Password []byte // the mysql.user native password hash, compared the way pkg/wire's auth.go does
}

// Cache is one service's user/db snapshot, rebuilt wholesale on refresh
// (never mutated row-by-row, so a reader never observes a half-updated
// table).
type Cache struct {
	mu     sync.RWMutex
	users  []UserEntry
	dbs    map[string]bool
	loaded bool
}

// NewCache returns an empty cache; Load must run at least once before
// Lookup returns anything.
func NewCache() *Cache {
	return &Cache{dbs: make(map[string]bool)}
}

// Load atomically replaces the cache's contents.
func (c *Cache) Load(users []UserEntry, dbs []string) {
	dbSet := make(map[string]bool, len(dbs))
	for _, d := range dbs {
		dbSet[d] = true
	}
	c.mu.Lock()
	c.users = users
	c.dbs = dbSet
	c.loaded = true
	c.mu.Unlock()
}

// Loaded reports whether Load has ever run.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Lookup implements spec section 4.I's matcher:
//
//	WHERE user=? AND (?=host OR ? LIKE host)
//	  AND (anydb=1 OR ? IN ('','information_schema') OR ? LIKE db)
//	LIMIT 1
//
// returning the first matching row in table order, the same "first
// match wins" semantics a LIMIT 1 query gives.
func (c *Cache) Lookup(user, host, db string) (UserEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.users {
		if e.User != user {
			continue
		}
		if host != e.Host && !likeMatch(e.Host, host) {
			continue
		}
		if !e.AnyDB && db != "" && db != "information_schema" && !likeMatch(e.DB, db) {
			continue
		}
		return e, true
	}
	return UserEntry{}, false
}

// HasDatabase reports whether db is one of the databases the backend
// reported via SHOW DATABASES at the last Load.
func (c *Cache) HasDatabase(db string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dbs[db]
}

// Package shard implements component E: schema-based sharding, routing a
// statement by the database name it references rather than by
// read/write split, per spec section 4.E.
package shard

import (
	"sync"
	"time"

	"github.com/google/btree"
)

// dbEntry is one shard_map row, ordered by database name so broadcast
// replies and diagnostics iterate in a deterministic order.
type dbEntry struct {
	db     string
	server string
}

func (e dbEntry) Less(other btree.Item) bool {
	return e.db < other.(dbEntry).db
}

// DuplicatePolicy controls what happens when the same database name is
// discovered on two backends while building the shard map.
type DuplicatePolicy int

const (
	DuplicateFatal DuplicatePolicy = iota
	DuplicateLogAndSkip
)

// Map is the db_name -> server shard map of spec section 4.E: built
// lazily from SHOW DATABASES against every backend, refreshed on a timer
// or on a lookup miss.
type Map struct {
	mu         sync.RWMutex
	tree       *btree.BTree
	lastBuilt  time.Time
	refresh    time.Duration
	duplicates DuplicatePolicy
}

// NewMap returns an empty shard map; Rebuild must be called at least once
// before Lookup returns anything.
func NewMap(refresh time.Duration, duplicates DuplicatePolicy) *Map {
	return &Map{tree: btree.New(8), refresh: refresh, duplicates: duplicates}
}

// DuplicateDatabaseError reports a database name discovered on more than
// one backend during Rebuild, under DuplicateFatal.
type DuplicateDatabaseError struct {
	DB       string
	Servers  [2]string
}

func (e *DuplicateDatabaseError) Error() string {
	return "Duplicate database name " + e.DB
}

// Rebuild replaces the shard map's contents from a fresh per-server
// SHOW DATABASES listing. byServer maps server name to the database
// names it reported. Under DuplicateLogAndSkip, the second and later
// servers to report a given database are dropped and reported in
// skipped; under DuplicateFatal, Rebuild stops and returns an error on
// the first collision, leaving the map unchanged.
func (m *Map) Rebuild(byServer map[string][]string, now time.Time) (skipped []DuplicateDatabaseError, err error) {
	next := btree.New(8)
	seen := make(map[string]string)

	servers := sortedKeys(byServer)
	for _, server := range servers {
		for _, db := range byServer[server] {
			if owner, ok := seen[db]; ok {
				dupErr := DuplicateDatabaseError{DB: db, Servers: [2]string{owner, server}}
				if m.duplicates == DuplicateFatal {
					return nil, &dupErr
				}
				skipped = append(skipped, dupErr)
				continue
			}
			seen[db] = server
			next.ReplaceOrInsert(dbEntry{db: db, server: server})
		}
	}

	m.mu.Lock()
	m.tree = next
	m.lastBuilt = now
	m.mu.Unlock()
	return skipped, nil
}

func sortedKeys(m map[string][]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Lookup returns the server owning db, and whether the map considers
// itself stale enough that the caller should trigger a refresh (a miss,
// or the refresh interval has elapsed since the last Rebuild).
func (m *Map) Lookup(db string, now time.Time) (server string, found, staleHint bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item := m.tree.Get(dbEntry{db: db})
	stale := m.refresh > 0 && now.Sub(m.lastBuilt) >= m.refresh
	if item == nil {
		return "", false, true
	}
	return item.(dbEntry).server, true, stale
}

// AllServers returns the distinct set of servers currently backing the
// shard map, in ascending database-name order of first appearance.
func (m *Map) AllServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	m.tree.Ascend(func(it btree.Item) bool {
		s := it.(dbEntry).server
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
		return true
	})
	return out
}

// Databases returns every known database name in ascending order, the
// shape SHOW DATABASES broadcast-union needs.
func (m *Map) Databases() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	m.tree.Ascend(func(it btree.Item) bool {
		out = append(out, it.(dbEntry).db)
		return true
	})
	return out
}

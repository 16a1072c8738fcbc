package authcache

// InjectMonitorCredentials implements spec section 4.I's last sentence:
// "A listener may also inject the service's own monitor credentials as
// a fallback." It is added to the cache's table with AnyDB set, so it
// matches regardless of the database a connecting client names — the
// same privilege scope the monitor itself needs to run admin queries
// against every backend.
func InjectMonitorCredentials(c *Cache, user, host string, password []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, UserEntry{User: user, Host: host, AnyDB: true, Password: password})
	c.loaded = true
}

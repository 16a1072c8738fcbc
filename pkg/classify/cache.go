package classify

import "container/list"

// cacheKey is (statement-text, sql_mode), per spec section 4.C.
type cacheKey struct {
	text    string
	sqlMode string
}

// Cache is the bounded per-thread/per-worker classification cache of spec
// section 4.C. It is never shared across workers: each worker owns one,
// matching the no-lock-needed ownership model of spec section 5.
type Cache struct {
	capacity int
	disabled bool
	entries  map[cacheKey]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key    cacheKey
	result Classification
}

func NewCache(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[cacheKey]*list.Element, capacity),
		order:    list.New(),
	}
}

// Disable turns the cache permanently off, per spec section 4.C: "the
// cache is disabled when a masking filter enables treat_string_arg_as_field".
func (c *Cache) Disable() {
	c.disabled = true
	c.entries = nil
	c.order = list.New()
}

func (c *Cache) Get(text, sqlMode string) (Classification, bool) {
	if c.disabled {
		return Classification{}, false
	}
	key := cacheKey{text, sqlMode}
	el, ok := c.entries[key]
	if !ok {
		return Classification{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

func (c *Cache) Put(text, sqlMode string, result Classification) {
	if c.disabled || c.capacity <= 0 {
		return
	}
	key := cacheKey{text, sqlMode}
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, result: result})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// CachingClassifier wraps a Classifier with a Cache.
type CachingClassifier struct {
	inner Classifier
	cache *Cache
}

func NewCachingClassifier(inner Classifier, capacity int) *CachingClassifier {
	return &CachingClassifier{inner: inner, cache: NewCache(capacity)}
}

func (c *CachingClassifier) Classify(stmt []byte, sqlMode string) (Classification, error) {
	text := string(stmt)
	if res, ok := c.cache.Get(text, sqlMode); ok {
		return res, nil
	}
	res, err := c.inner.Classify(stmt, sqlMode)
	if err != nil {
		return Classification{}, err
	}
	c.cache.Put(text, sqlMode, res)
	return res, nil
}

// DisableCache disables the underlying cache (e.g. when a masking filter
// requires treat_string_arg_as_field semantics).
func (c *CachingClassifier) DisableCache() { c.cache.Disable() }

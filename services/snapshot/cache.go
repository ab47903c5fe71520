package snapshot

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"smartlists/models"
	"smartlists/utils/similarity"
)

type seriesUserKey struct {
	seriesID string
	userID   string
}

type nextUnwatchedKey struct {
	seriesID         string
	userID           string
	includeUnwatched bool
}

// nextEpisode is the cached next-unwatched candidate of a series for a user.
type nextEpisode struct {
	found   bool
	itemID  string
	season  int
	episode int
}

// collectionIndex maps collections to members and members back to the
// names of the collections holding them.
type collectionIndex struct {
	members  map[string]map[string]struct{}
	memberOf map[string][]string
}

// Cache memoizes the expensive lookups of one refresh pass. Create one per
// pass and drop it afterwards; entries are never invalidated while the pass
// runs and the first value stored for a key wins.
type Cache struct {
	mu     sync.Mutex
	flight singleflight.Group

	episodes        map[seriesUserKey][]models.Item
	nextUnwatched   map[nextUnwatchedKey]nextEpisode
	itemCollections map[string][]string
	people          map[string][]models.Person
	details         map[string]models.Item
	series          map[string]models.Item
	users           map[string]models.User

	collectionsOnce sync.Once
	collections     *collectionIndex

	similarityOnce sync.Once
	similarity     *similarity.Reference
}

// NewCache returns an empty per-pass cache.
func NewCache() *Cache {
	return &Cache{
		episodes:        make(map[seriesUserKey][]models.Item),
		nextUnwatched:   make(map[nextUnwatchedKey]nextEpisode),
		itemCollections: make(map[string][]string),
		people:          make(map[string][]models.Person),
		details:         make(map[string]models.Item),
		series:          make(map[string]models.Item),
		users:           make(map[string]models.User),
	}
}

// storeOnce keeps the first value written for a key and returns whichever
// value ended up stored.
func storeOnce[K comparable, V any](c *Cache, m map[K]V, key K, value V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := m[key]; ok {
		return existing
	}
	m[key] = value
	return value
}

// loadOrCompute returns the cached value for key, computing it at most once
// per cache even when several workers miss at the same time. Failed
// computations are not cached.
func loadOrCompute[K comparable, V any](c *Cache, m map[K]V, ns string, key K, compute func() (V, error)) (V, error) {
	if v, ok := load(c, m, key); ok {
		return v, nil
	}
	res, err, _ := c.flight.Do(fmt.Sprintf("%s/%v", ns, key), func() (any, error) {
		if v, ok := load(c, m, key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return storeOnce(c, m, key, v), nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func load[K comparable, V any](c *Cache, m map[K]V, key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := m[key]
	return v, ok
}

// Stats reports entry counts, mostly for logging at the end of a pass.
func (c *Cache) Stats() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := map[string]int{
		"episodes":       len(c.episodes),
		"next_unwatched": len(c.nextUnwatched),
		"collections":    len(c.itemCollections),
		"people":         len(c.people),
		"series":         len(c.series),
		"users":          len(c.users),
	}
	if c.collections != nil {
		stats["collection_index"] = len(c.collections.members)
	}
	return stats
}

package generations

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const defaultIdempotencyEntries = 10_000

// idempotencyCache maps (user, Idempotency-Key) to the generation it created.
// It is per process; a replay that lands on another instance creates a new
// generation.
type idempotencyCache struct {
	cache *lru.Cache[string, string]
	// inflight collapses concurrent creates for the same key.
	inflight singleflight.Group
}

func newIdempotencyCache(size int) *idempotencyCache {
	if size <= 0 {
		size = defaultIdempotencyEntries
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &idempotencyCache{cache: cache}
}

func idempotencyKey(userID, key string) string {
	return userID + "\x00" + strings.TrimSpace(key)
}

type idempotentResult struct {
	id       string
	replayed bool
	// owner identifies the caller whose create ran.
	owner *int
}

// do returns the cached generation id for key, or runs create and remembers
// its result. Concurrent callers with the same key share one create; callers
// with different keys never wait on each other.
func (c *idempotencyCache) do(userID, key string, create func() (string, error)) (string, bool, error) {
	k := idempotencyKey(userID, key)
	if id, ok := c.cache.Get(k); ok {
		return id, true, nil
	}
	self := new(int)
	v, err, _ := c.inflight.Do(k, func() (any, error) {
		if id, ok := c.cache.Get(k); ok {
			return idempotentResult{id: id, replayed: true}, nil
		}
		id, err := create()
		if err != nil {
			return nil, err
		}
		c.cache.Add(k, id)
		return idempotentResult{id: id, owner: self}, nil
	})
	if err != nil {
		return "", false, err
	}
	res := v.(idempotentResult)
	return res.id, res.replayed || res.owner != self, nil
}

func (c *idempotencyCache) forget(userID, key string) {
	c.cache.Remove(idempotencyKey(userID, key))
}

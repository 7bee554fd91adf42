package sheet

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

type cachedStore struct {
	Store
	sheets *cache.Cache
	group  singleflight.Group

	mu  sync.Mutex
	gen map[string]uint64 // bumped on every eviction
}

// NewCached serves Get from an in-process cache for ttl. Writes through
// the returned store evict the sheet; writes made elsewhere show up once
// the entry expires.
func NewCached(store Store, ttl time.Duration) Store {
	if ttl <= 0 {
		return store
	}
	return &cachedStore{Store: store, sheets: cache.New(ttl, 2*ttl), gen: map[string]uint64{}}
}

func (c *cachedStore) Get(ctx context.Context, id string) (Sheet, error) {
	if v, ok := c.sheets.Get(id); ok {
		return v.(Sheet), nil
	}
	v, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.Lock()
		gen := c.gen[id]
		c.mu.Unlock()

		s, err := c.Store.Get(ctx, id)
		if err != nil {
			return Sheet{}, err
		}
		// an eviction during the load means s may be stale
		c.mu.Lock()
		if c.gen[id] == gen {
			c.sheets.SetDefault(id, s)
		}
		c.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return Sheet{}, err
	}
	return v.(Sheet), nil
}

func (c *cachedStore) Update(ctx context.Context, id string, d Draft) (Sheet, error) {
	s, err := c.Store.Update(ctx, id, d)
	c.evict(id)
	return s, err
}

func (c *cachedStore) Delete(ctx context.Context, id string) error {
	err := c.Store.Delete(ctx, id)
	c.evict(id)
	return err
}

func (c *cachedStore) evict(id string) {
	c.mu.Lock()
	c.gen[id]++
	c.sheets.Delete(id)
	c.mu.Unlock()
	c.group.Forget(id)
}

package catalog

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/KevinKickass/PumpFleet/internal/types"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pumpfleet_catalog_cache_hits_total",
		Help: "Pump detail lookups served from the catalog cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pumpfleet_catalog_cache_misses_total",
		Help: "Pump detail lookups that went to the underlying source.",
	})
)

// CachedSource keeps recently fetched pumps in an expiring LRU so detail
// lookups skip the source latency. Misses are not cached.
type CachedSource struct {
	next  Source
	cache *expirable.LRU[string, types.Pump]
}

func NewCachedSource(next Source, size int, ttl time.Duration) *CachedSource {
	return &CachedSource{
		next:  next,
		cache: expirable.NewLRU[string, types.Pump](size, nil, ttl),
	}
}

// FetchAll always reads through and refreshes the cached entries.
func (c *CachedSource) FetchAll(ctx context.Context) ([]types.Pump, error) {
	pumps, err := c.next.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range pumps {
		c.cache.Add(p.ID, ClonePump(p))
	}
	return pumps, nil
}

func (c *CachedSource) FetchByID(ctx context.Context, id string) (*types.Pump, error) {
	if p, ok := c.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		clone := ClonePump(p)
		return &clone, nil
	}
	cacheMissesTotal.Inc()

	p, err := c.next.FetchByID(ctx, id)
	if err != nil || p == nil {
		return p, err
	}
	c.cache.Add(id, ClonePump(*p))
	return p, nil
}


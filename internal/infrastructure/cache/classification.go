// Package cache memoizes classifier results for unchanged file content.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

const (
	DefaultSize = 512
	DefaultTTL  = 24 * time.Hour
)

type ClassificationCache struct {
	lru    *expirable.LRU[string, domain.Classification]
	hits   prometheus.Counter
	misses prometheus.Counter
}

// NewClassificationCache builds an LRU with a per-entry TTL. Hit and miss
// counters are registered on reg when it is not nil.
func NewClassificationCache(size int, ttl time.Duration, reg prometheus.Registerer) *ClassificationCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	hitOpts := prometheus.CounterOpts{
		Namespace: "archive",
		Name:      "classification_cache_hits_total",
		Help:      "Classifier calls answered from cache.",
	}
	missOpts := prometheus.CounterOpts{
		Namespace: "archive",
		Name:      "classification_cache_misses_total",
		Help:      "Classifier calls not found in cache.",
	}
	c := &ClassificationCache{
		lru:    expirable.NewLRU[string, domain.Classification](size, nil, ttl),
		hits:   prometheus.NewCounter(hitOpts),
		misses: prometheus.NewCounter(missOpts),
	}
	if reg != nil {
		factory := promauto.With(reg)
		c.hits = factory.NewCounter(hitOpts)
		c.misses = factory.NewCounter(missOpts)
	}
	return c
}

func (c *ClassificationCache) Get(key string) (domain.Classification, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		c.misses.Inc()
		return domain.Classification{}, false
	}
	c.hits.Inc()
	return cloneClassification(v), true
}

func (c *ClassificationCache) Add(key string, value domain.Classification) {
	c.lru.Add(key, cloneClassification(value))
}

func (c *ClassificationCache) Len() int {
	return c.lru.Len()
}

func cloneClassification(v domain.Classification) domain.Classification {
	if v.Fields.Keywords != nil {
		v.Fields.Keywords = append([]string(nil), v.Fields.Keywords...)
	}
	return v
}

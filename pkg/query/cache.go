package query

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cryoetdb/cryoetdb/pkg/metrics"
)

// Cached memoizes successful answers of another Querier for a fixed TTL.
// Errors are never cached.
type Cached struct {
	next    Querier
	cache   *cache.Cache
	metrics *metrics.PipelineMetrics
}

var _ Querier = (*Cached)(nil)

// NewCached wraps next. A ttl of zero or less disables caching.
func NewCached(next Querier, ttl time.Duration, m *metrics.PipelineMetrics) *Cached {
	c := &Cached{next: next, metrics: m}
	if ttl > 0 {
		c.cache = cache.New(ttl, 2*ttl)
	}
	return c
}

func (c *Cached) lookup(key string) (interface{}, bool) {
	if c.cache == nil {
		return nil, false
	}
	v, ok := c.cache.Get(key)
	c.metrics.RecordCacheLookup(ok)
	return v, ok
}

func (c *Cached) store(key string, v interface{}) {
	if c.cache != nil {
		c.cache.SetDefault(key, v)
	}
}

func (c *Cached) CountAnnotations(ctx context.Context, name string) (int64, error) {
	key := "count:" + name
	if v, ok := c.lookup(key); ok {
		return v.(int64), nil
	}
	n, err := c.next.CountAnnotations(ctx, name)
	if err != nil {
		return 0, err
	}
	c.store(key, n)
	return n, nil
}

func (c *Cached) FindRichTomograms(ctx context.Context, minCount int64) ([]RichTomogram, error) {
	key := "rich:" + strconv.FormatInt(minCount, 10)
	if v, ok := c.lookup(key); ok {
		return slices.Clone(v.([]RichTomogram)), nil
	}
	result, err := c.next.FindRichTomograms(ctx, minCount)
	if err != nil {
		return nil, err
	}
	c.store(key, slices.Clone(result))
	return result, nil
}

func (c *Cached) LocateAnnotation(ctx context.Context, id int64) (AnnotationLocation, error) {
	key := "locate:" + strconv.FormatInt(id, 10)
	if v, ok := c.lookup(key); ok {
		return v.(AnnotationLocation), nil
	}
	loc, err := c.next.LocateAnnotation(ctx, id)
	if err != nil {
		return AnnotationLocation{}, err
	}
	c.store(key, loc)
	return loc, nil
}

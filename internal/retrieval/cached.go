package retrieval

import (
	"context"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/textnorm"
)

var _ ports.RetrievalIndex = (*Cached)(nil)

// DefaultFetchTimeout bounds one shared upstream search.
const DefaultFetchTimeout = 10 * time.Second

// CachedOption configures a Cached index.
type CachedOption func(*Cached)

// WithFetchTimeout bounds the upstream search shared by collapsed callers.
func WithFetchTimeout(d time.Duration) CachedOption {
	return func(c *Cached) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// Cached memoizes successful searches of an underlying index for ttl and
// collapses concurrent identical searches into one upstream call. Errors are
// not cached.
//
// The shared upstream call does not inherit any single caller's cancellation;
// each caller stops waiting when its own context ends.
type Cached struct {
	next         ports.RetrievalIndex
	cache        *expirable.LRU[string, []domain.RetrievedDocument]
	group        singleflight.Group
	fetchTimeout time.Duration
}

// NewCached wraps next with an LRU of the given size.
func NewCached(next ports.RetrievalIndex, size int, ttl time.Duration, opts ...CachedOption) *Cached {
	if size <= 0 {
		size = 256
	}
	c := &Cached{
		next:         next,
		cache:        expirable.NewLRU[string, []domain.RetrievedDocument](size, nil, ttl),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	key := strconv.Itoa(k) + "\x00" + textnorm.Normalize(query)

	if docs, ok := c.cache.Get(key); ok {
		return cloneDocs(docs), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		docs, err := c.next.Search(fetchCtx, query, k)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, docs)
		return docs, nil
	})

	select {
	case <-ctx.Done():
		return nil, domain.ErrRetrieval(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneDocs(res.Val.([]domain.RetrievedDocument)), nil
	}
}

// Purge drops every cached result.
func (c *Cached) Purge() {
	c.cache.Purge()
}

func cloneDocs(docs []domain.RetrievedDocument) []domain.RetrievedDocument {
	if docs == nil {
		return nil
	}
	out := make([]domain.RetrievedDocument, len(docs))
	for i, d := range docs {
		d.Metadata = copyMetadata(d.Metadata)
		out[i] = d
	}
	return out
}

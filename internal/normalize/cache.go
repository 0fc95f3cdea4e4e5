package normalize

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// Cached memoizes Process results by raw body. Gateway retries and merged
// conversations tend to carry the same body many times over.
type Cached struct {
	n     *Normalizer
	cache *lru.Cache
}

// NewCached wraps n with an LRU of the given size.
func NewCached(n *Normalizer, size int) (*Cached, error) {
	if n == nil {
		n = std
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalization cache: %w", err)
	}
	return &Cached{n: n, cache: cache}, nil
}

// Process returns the memoized result for raw, computing it on a miss.
func (c *Cached) Process(raw string) Result {
	if v, ok := c.cache.Get(raw); ok {
		return v.(Result)
	}
	res := c.n.Process(raw)
	c.cache.Add(raw, res)
	return res
}

// Normalize returns the cleaned text of raw.
func (c *Cached) Normalize(raw string) string {
	return c.Process(raw).Text
}

// StripTicketReference is not cached; subjects are short.
func (c *Cached) StripTicketReference(subject string) string {
	return c.n.StripTicketReference(subject)
}

// Len reports how many bodies are cached.
func (c *Cached) Len() int {
	return c.cache.Len()
}

package pricefeed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a priced symbol at a point in time.
type Quote struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

// quoteCache holds recent quotes so repeated requests inside the TTL hit the
// upstream only once.
type quoteCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]Quote
}

func newQuoteCache(ttl time.Duration) *quoteCache {
	return &quoteCache{
		ttl:     ttl,
		entries: make(map[string]Quote),
	}
}

func (c *quoteCache) get(symbol string, now time.Time) (Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.entries[symbol]
	if !ok || now.Sub(q.Timestamp) > c.ttl {
		return Quote{}, false
	}
	return q, true
}

func (c *quoteCache) put(q Quote) {
	c.mu.Lock()
	c.entries[q.Symbol] = q
	c.mu.Unlock()
}

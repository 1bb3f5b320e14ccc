package gateway

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StockQuote is what GET /stocks/{name} answers with
type StockQuote struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// StockCache keeps the most recently used quotes. Reads refresh recency, the least recently used quote is evicted
// once size is reached. The catalog removes a quote after every trade on it.
type StockCache struct {
	quotes *lru.Cache[string, StockQuote]
}

func NewStockCache(size int) (*StockCache, error) {
	quotes, err := lru.New[string, StockQuote](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create stock cache of size %d: %w", size, err)
	}
	return &StockCache{quotes: quotes}, nil
}

func (c *StockCache) Get(name string) (StockQuote, bool) {
	return c.quotes.Get(name)
}

func (c *StockCache) Add(quote StockQuote) {
	c.quotes.Add(quote.Name, quote)
}

// Invalidate drops name and reports whether it was cached
func (c *StockCache) Invalidate(name string) bool {
	return c.quotes.Remove(name)
}

func (c *StockCache) Len() int {
	return c.quotes.Len()
}

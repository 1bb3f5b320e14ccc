package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"stock-ledger/internal/order"
)

// Messages the catalog answers rejected requests with. The order service tells them apart by text.
const (
	MessageStockNotFound = "stock not found"
	MessageNotEnough     = "not enough stock"
)

var (
	ErrStockNotFound = errors.New(MessageStockNotFound)
	ErrNotEnough     = errors.New(MessageNotEnough)
)

// Stock is one row of the catalog. The csv tags are the snapshot columns: Name, Price, Quantity, Volume.
type Stock struct {
	Name     string  `csv:"Name"`
	Price    float64 `csv:"Price"`
	Quantity int64   `csv:"Quantity"`
	// Volume is the total number of shares traded so far, both directions
	Volume int64 `csv:"Volume"`
}

// Catalog is the in-memory inventory. Lookups share the read lock, trades and the snapshot loader take the write lock.
type Catalog struct {
	mu     sync.RWMutex
	stocks map[string]Stock
}

func New(stocks []Stock) *Catalog {
	c := &Catalog{stocks: make(map[string]Stock, len(stocks))}
	for _, s := range stocks {
		c.stocks[s.Name] = s
	}
	return c
}

// Lookup returns the stock called name
func (c *Catalog) Lookup(name string) (Stock, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.stocks[name]
	if !ok {
		return Stock{}, fmt.Errorf("%w: %q", ErrStockNotFound, name)
	}
	return s, nil
}

// Trade executes a trade. A buy succeeds only while quantity covers it and moves shares out of the inventory; a sell
// puts them back. Both add to the traded volume.
func (c *Catalog) Trade(name string, tradeType order.TradeType, quantity int64) (Stock, error) {
	if quantity < 0 {
		return Stock{}, fmt.Errorf("%w: %d", order.ErrNegativeVolume, quantity)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stocks[name]
	if !ok {
		return Stock{}, fmt.Errorf("%w: %q", ErrStockNotFound, name)
	}

	switch tradeType {
	case order.Buy:
		if quantity > s.Quantity {
			return Stock{}, fmt.Errorf("%w: %d %s requested, %d left", ErrNotEnough, quantity, name, s.Quantity)
		}
		s.Quantity -= quantity
	case order.Sell:
		s.Quantity += quantity
	default:
		return Stock{}, fmt.Errorf("%w: %q", order.ErrInvalidTradeType, tradeType)
	}
	s.Volume += quantity

	c.stocks[name] = s
	return s, nil
}

// Stocks returns a copy of every stock, ordered by name
func (c *Catalog) Stocks() []Stock {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stocks := make([]Stock, 0, len(c.stocks))
	for _, s := range c.stocks {
		stocks = append(stocks, s)
	}
	sort.Slice(stocks, func(i, j int) bool {
		return stocks[i].Name < stocks[j].Name
	})
	return stocks
}

// DefaultStocks seeds a catalog that has no snapshot yet
func DefaultStocks() []Stock {
	prices := []float64{15.99, 7.25, 42.5, 23.1, 189.3, 178.2, 140.6, 480.75, 875.4, 610.15}
	stocks := make([]Stock, 0, len(order.DefaultInstruments))
	for i, name := range order.DefaultInstruments {
		stocks = append(stocks, Stock{Name: name, Price: prices[i%len(prices)], Quantity: 1000})
	}
	return stocks
}

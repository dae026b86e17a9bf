// Package ordergen synthesizes random orders so a node produces flow on its
// own without an external client.
package ordergen

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/uhyunpark/meshbook/pkg/book"
)

// Config bounds the generated orders. Ranges are inclusive.
type Config struct {
	Symbols  []string
	MinQty   int64
	MaxQty   int64
	MinPrice int64
	MaxPrice int64
}

func DefaultConfig() Config {
	return Config{
		Symbols:  []string{"BTC", "ETH"},
		MinQty:   1,
		MaxQty:   200,
		MinPrice: 1,
		MaxPrice: 100,
	}
}

func (c Config) Validate() error {
	switch {
	case len(c.Symbols) == 0:
		return fmt.Errorf("ordergen: no symbols")
	case c.MinQty <= 0 || c.MaxQty < c.MinQty:
		return fmt.Errorf("ordergen: bad quantity range [%d, %d]", c.MinQty, c.MaxQty)
	case c.MinPrice <= 0 || c.MaxPrice < c.MinPrice:
		return fmt.Errorf("ordergen: bad price range [%d, %d]", c.MinPrice, c.MaxPrice)
	}
	return nil
}

// Generator creates random orders. It is safe for concurrent use.
type Generator struct {
	cfg Config

	mu        sync.Mutex
	rng       *rand.Rand
	generated int
}

func New(cfg Config, seed int64) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

// Next returns a random order. OrderID and Client are left for the book and
// the node to fill in.
func (g *Generator) Next() book.Order {
	g.mu.Lock()
	defer g.mu.Unlock()

	side := book.Sell
	if g.rng.Intn(2) == 1 {
		side = book.Buy
	}
	g.generated++

	return book.Order{
		Symbol:   g.cfg.Symbols[g.rng.Intn(len(g.cfg.Symbols))],
		Quantity: g.between(g.cfg.MinQty, g.cfg.MaxQty),
		Price:    g.between(g.cfg.MinPrice, g.cfg.MaxPrice),
		Side:     side,
	}
}

// Generated returns how many orders Next has produced.
func (g *Generator) Generated() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generated
}

func (g *Generator) between(lo, hi int64) int64 {
	return lo + g.rng.Int63n(hi-lo+1)
}

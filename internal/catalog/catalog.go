// Package catalog keeps the current unit price and stock of every product,
// refreshed from the backend's instrument listing.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// PriceBook resolves a product's current price and stock. Cart totals and the
// stock boundary read through it.
type PriceBook interface {
	UnitPrice(id domain.ProductID) (decimal.Decimal, bool)
	Stock(id domain.ProductID) (int, bool)
}

type ProductSource interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

type Catalog struct {
	source ProductSource
	log    *logger.Logger
	group  singleflight.Group

	mu        sync.RWMutex
	products  map[domain.ProductID]domain.Product
	order     []domain.ProductID
	refreshed time.Time
}

// New returns an empty catalog. source may be nil for a catalog filled only
// through Put.
func New(source ProductSource, log *logger.Logger) *Catalog {
	return &Catalog{
		source:   source,
		log:      log,
		products: make(map[domain.ProductID]domain.Product),
	}
}

func (c *Catalog) UnitPrice(id domain.ProductID) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return decimal.Zero, false
	}
	return p.Price, true
}

func (c *Catalog) Stock(id domain.ProductID) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return 0, false
	}
	return p.Stock, true
}

func (c *Catalog) Product(id domain.ProductID) (domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// Products returns the known products in listing order.
func (c *Catalog) Products() []domain.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}

// Put inserts or replaces products.
func (c *Catalog) Put(products ...domain.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range products {
		if _, exists := c.products[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.products[p.ID] = p
	}
}

func (c *Catalog) RefreshedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}

// Refresh replaces the catalog with the source's listing. Concurrent callers
// share one fetch.
func (c *Catalog) Refresh(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("catalog has no product source")
	}

	v, err, shared := c.group.Do("products", func() (interface{}, error) {
		return c.source.ListProducts(ctx)
	})
	if err != nil {
		c.log.Warn("catalog refresh failed", "error", err)
		return fmt.Errorf("failed to refresh catalog: %w", err)
	}
	products := v.([]domain.Product)

	c.mu.Lock()
	c.products = make(map[domain.ProductID]domain.Product, len(products))
	c.order = c.order[:0]
	for _, p := range products {
		if _, exists := c.products[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.products[p.ID] = p
	}
	c.refreshed = time.Now()
	c.mu.Unlock()

	c.log.Debug("catalog refreshed", "products", len(products), "shared", shared)
	return nil
}

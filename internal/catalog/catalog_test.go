package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls    atomic.Int32
	products []domain.Product
	err      error
	gate     chan struct{}
}

func (f *fakeSource) ListProducts(ctx context.Context) ([]domain.Product, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return f.products, f.err
}

func guitar() domain.Product {
	return domain.Product{ID: 1, Name: "Guitarra", Brand: "Fender", Price: decimal.RequireFromString("199.99"), Stock: 2}
}

func TestCatalog_PutAndLookup(t *testing.T) {
	c := New(nil, logger.NewNop())
	c.Put(guitar())

	price, ok := c.UnitPrice(1)
	require.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("199.99")))

	stock, ok := c.Stock(1)
	require.True(t, ok)
	assert.Equal(t, 2, stock)

	_, ok = c.UnitPrice(99)
	assert.False(t, ok)
	_, ok = c.Stock(99)
	assert.False(t, ok)
}

func TestCatalog_PutKeepsListingOrder(t *testing.T) {
	c := New(nil, logger.NewNop())
	c.Put(domain.Product{ID: 3}, domain.Product{ID: 1})
	c.Put(domain.Product{ID: 3, Name: "updated"})

	products := c.Products()
	require.Len(t, products, 2)
	assert.Equal(t, domain.ProductID(3), products[0].ID)
	assert.Equal(t, "updated", products[0].Name)
}

func TestCatalog_Refresh(t *testing.T) {
	src := &fakeSource{products: []domain.Product{guitar()}}
	c := New(src, logger.NewNop())
	c.Put(domain.Product{ID: 50})

	require.NoError(t, c.Refresh(context.Background()))

	_, ok := c.Product(50)
	assert.False(t, ok, "refresh replaces the previous listing")
	p, ok := c.Product(1)
	require.True(t, ok)
	assert.Equal(t, "Guitarra", p.Name)
	assert.False(t, c.RefreshedAt().IsZero())
}

func TestCatalog_RefreshError(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	c := New(src, logger.NewNop())
	c.Put(guitar())

	err := c.Refresh(context.Background())
	require.Error(t, err)

	_, ok := c.Product(1)
	assert.True(t, ok, "failed refresh keeps the cached listing")
}

func TestCatalog_RefreshWithoutSource(t *testing.T) {
	c := New(nil, logger.NewNop())
	assert.Error(t, c.Refresh(context.Background()))
}

func TestCatalog_ConcurrentRefreshIsCoalesced(t *testing.T) {
	src := &fakeSource{products: []domain.Product{guitar()}, gate: make(chan struct{})}
	c := New(src, logger.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Refresh(context.Background()))
		}()
	}

	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

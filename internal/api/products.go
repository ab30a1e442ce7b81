package api

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

// ListProducts fetches the public catalog with current prices and stock.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var resp []productDTO
	err := c.do(ctx, request{
		op:     "list products",
		method: http.MethodGet,
		path:   "/instrumentos",
	}, &resp)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(resp))
	for _, p := range resp {
		products = append(products, p.toDomain())
	}
	return products, nil
}

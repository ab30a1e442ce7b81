package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

// CreateOrder submits the snapshotted request attributed to userID. The
// request's idempotency key travels in the Idempotency-Key header.
func (c *Client) CreateOrder(ctx context.Context, userID int64, req domain.OrderRequest) (*domain.Order, error) {
	var resp orderDTO
	err := c.do(ctx, request{
		op:             "create order",
		method:         http.MethodPost,
		path:           "/pedidos",
		userID:         userID,
		idempotencyKey: req.IdempotencyKey,
		body:           newCreateOrderDTO(req),
	}, &resp)
	if err != nil {
		return nil, err
	}
	order := resp.toDomain()
	return &order, nil
}

// ListOrders returns every order. The backend restricts it to admins.
func (c *Client) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	return c.listOrders(ctx, "list orders", "/pedidos", userID)
}

func (c *Client) ListOrdersByUser(ctx context.Context, userID, ownerID int64) ([]domain.Order, error) {
	return c.listOrders(ctx, "list user orders", fmt.Sprintf("/pedidos/usuario/%d", ownerID), userID)
}

func (c *Client) listOrders(ctx context.Context, op, path string, userID int64) ([]domain.Order, error) {
	var resp []orderDTO
	err := c.do(ctx, request{
		op:     op,
		method: http.MethodGet,
		path:   path,
		userID: userID,
	}, &resp)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(resp))
	for _, o := range resp {
		orders = append(orders, o.toDomain())
	}
	return orders, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, userID, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	var resp orderDTO
	err := c.do(ctx, request{
		op:     "update order status",
		method: http.MethodPatch,
		path:   fmt.Sprintf("/pedidos/%d/estado", orderID),
		userID: userID,
		body:   map[string]string{"estado": status.String()},
	}, &resp)
	if err != nil {
		return nil, err
	}
	order := resp.toDomain()
	return &order, nil
}

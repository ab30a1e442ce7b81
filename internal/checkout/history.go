package checkout

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/guard"
)

type OrderBackend interface {
	ListOrders(ctx context.Context, userID int64) ([]domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID, ownerID int64) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, userID, orderID int64, status domain.OrderStatus) (*domain.Order, error)
}

// History lists and manages placed orders on behalf of the current session.
type History struct {
	backend  OrderBackend
	sessions SessionSource
}

func NewHistory(backend OrderBackend, sessions SessionSource) *History {
	return &History{backend: backend, sessions: sessions}
}

func (h *History) authorize(op string, roles ...domain.Role) (domain.Session, error) {
	s := h.sessions.Session()
	if err := guard.Authorize(s, roles...).Err(op); err != nil {
		return s, err
	}
	return s, nil
}

// Mine lists the signed-in user's orders.
func (h *History) Mine(ctx context.Context) ([]domain.Order, error) {
	s, err := h.authorize("my orders")
	if err != nil {
		return nil, err
	}
	return h.backend.ListOrdersByUser(ctx, s.Identity.ID, s.Identity.ID)
}

func (h *History) All(ctx context.Context) ([]domain.Order, error) {
	s, err := h.authorize("all orders", domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return h.backend.ListOrders(ctx, s.Identity.ID)
}

func (h *History) UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus) (*domain.Order, error) {
	s, err := h.authorize("update order status", domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, domain.ValidationError(domain.ErrUnknownOrderStatus, "%q", status)
	}
	return h.backend.UpdateOrderStatus(ctx, s.Identity.ID, orderID, status)
}

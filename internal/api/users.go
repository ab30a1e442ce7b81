package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

// ListUsers returns every registered account. The backend restricts it to
// admins and identifies the caller by userID.
func (c *Client) ListUsers(ctx context.Context, userID int64) ([]domain.Account, error) {
	var resp []userDTO
	err := c.do(ctx, request{
		op:     "list users",
		method: http.MethodGet,
		path:   "/usuarios",
		userID: userID,
	}, &resp)
	if err != nil {
		return nil, err
	}

	accounts := make([]domain.Account, 0, len(resp))
	for _, u := range resp {
		accounts = append(accounts, u.toDomain())
	}
	return accounts, nil
}

// RegisterOperator creates an Operador account on behalf of an admin.
func (c *Client) RegisterOperator(ctx context.Context, userID int64, req RegisterRequest) error {
	req.Role = domain.RoleOperator.Label()
	return c.do(ctx, request{
		op:     "register operator",
		method: http.MethodPost,
		path:   "/usuarios/registro",
		userID: userID,
		body:   req,
	}, nil)
}

func (c *Client) DeleteUser(ctx context.Context, userID, targetID int64) error {
	return c.do(ctx, request{
		op:     "delete user",
		method: http.MethodDelete,
		path:   fmt.Sprintf("/usuarios/%d", targetID),
		userID: userID,
	}, nil)
}

package api

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
)

// Login posts the credentials. A 2xx answer with success=false is reported as
// an auth error carrying the backend message.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   "/usuarios/login",
		body:   creds,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "authentication failed"
		}
		return nil, domain.AuthError(&StatusError{StatusCode: http.StatusOK, Message: msg}, "login")
	}
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, request{
		op:     "register",
		method: http.MethodPost,
		path:   "/usuarios/registro",
		body:   req,
	}, nil)
}

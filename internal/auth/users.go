package auth

import (
	"context"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/guard"
	"github.com/go-playground/validator/v10"
)

// UserBackend is the admin side of the account API.
type UserBackend interface {
	ListUsers(ctx context.Context, userID int64) ([]domain.Account, error)
	RegisterOperator(ctx context.Context, userID int64, req api.RegisterRequest) error
	DeleteUser(ctx context.Context, userID, targetID int64) error
}

type SessionSource interface {
	Session() domain.Session
}

// Directory manages accounts on behalf of a signed-in admin.
type Directory struct {
	backend  UserBackend
	sessions SessionSource
	validate *validator.Validate
}

func NewDirectory(backend UserBackend, sessions SessionSource) *Directory {
	return &Directory{backend: backend, sessions: sessions, validate: validator.New()}
}

func (d *Directory) admin(op string) (domain.Session, error) {
	s := d.sessions.Session()
	if err := guard.Authorize(s, domain.RoleAdmin).Err(op); err != nil {
		return s, err
	}
	return s, nil
}

func (d *Directory) List(ctx context.Context) ([]domain.Account, error) {
	s, err := d.admin("list users")
	if err != nil {
		return nil, err
	}
	return d.backend.ListUsers(ctx, s.Identity.ID)
}

// AddOperator registers an Operador account. Any role in p is ignored.
func (d *Directory) AddOperator(ctx context.Context, p Profile) error {
	s, err := d.admin("add operator")
	if err != nil {
		return err
	}
	if err := d.validate.Struct(p); err != nil {
		return domain.ValidationError(err, "invalid operator form")
	}
	return d.backend.RegisterOperator(ctx, s.Identity.ID, api.RegisterRequest{
		Name:     p.Name,
		Surname:  p.Surname,
		Email:    p.Email,
		Password: p.Password,
	})
}

// Remove deletes an account. Admins cannot delete themselves.
func (d *Directory) Remove(ctx context.Context, id int64) error {
	s, err := d.admin("delete user")
	if err != nil {
		return err
	}
	if id == s.Identity.ID {
		return domain.ValidationError(domain.ErrSelfDelete, "user %d", id)
	}
	return d.backend.DeleteUser(ctx, s.Identity.ID, id)
}

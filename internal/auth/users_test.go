package auth

import (
	"context"
	"testing"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserBackend struct {
	mock.Mock
}

func (m *mockUserBackend) ListUsers(ctx context.Context, userID int64) ([]domain.Account, error) {
	args := m.Called(ctx, userID)
	if a := args.Get(0); a != nil {
		return a.([]domain.Account), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserBackend) RegisterOperator(ctx context.Context, userID int64, req api.RegisterRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}

func (m *mockUserBackend) DeleteUser(ctx context.Context, userID, targetID int64) error {
	return m.Called(ctx, userID, targetID).Error(0)
}

type staticSession struct{ session domain.Session }

func (s staticSession) Session() domain.Session { return s.session }

var (
	adminSession    = domain.NewSession(domain.Identity{ID: 1, DisplayName: "root"}, domain.RoleAdmin)
	operatorSession = domain.NewSession(domain.Identity{ID: 2, DisplayName: "op"}, domain.RoleOperator)
)

func TestDirectory_ListIsAdminOnly(t *testing.T) {
	backend := new(mockUserBackend)
	backend.On("ListUsers", mock.Anything, int64(1)).Return([]domain.Account{{ID: 1}, {ID: 2}}, nil)

	_, err := NewDirectory(backend, staticSession{}).List(context.Background())
	assert.ErrorIs(t, err, domain.ErrLoginRequired)

	_, err = NewDirectory(backend, staticSession{operatorSession}).List(context.Background())
	assert.True(t, domain.IsKind(err, domain.KindAuthorization))

	accounts, err := NewDirectory(backend, staticSession{adminSession}).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
	backend.AssertNumberOfCalls(t, "ListUsers", 1)
}

func TestDirectory_AddOperator(t *testing.T) {
	backend := new(mockUserBackend)
	backend.On("RegisterOperator", mock.Anything, int64(1), api.RegisterRequest{
		Name: "Op", Surname: "Era", Email: "op@example.com", Password: "secret",
	}).Return(nil)

	dir := NewDirectory(backend, staticSession{adminSession})
	require.NoError(t, dir.AddOperator(context.Background(), Profile{Name: "Op", Surname: "Era", Email: "op@example.com", Password: "secret"}))

	err := dir.AddOperator(context.Background(), Profile{Name: "Op", Email: "not-an-email", Password: "secret"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	backend.AssertNumberOfCalls(t, "RegisterOperator", 1)
}

func TestDirectory_RemoveSelfIsRejected(t *testing.T) {
	backend := new(mockUserBackend)
	backend.On("DeleteUser", mock.Anything, int64(1), int64(5)).Return(nil)
	dir := NewDirectory(backend, staticSession{adminSession})

	err := dir.Remove(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrSelfDelete)

	require.NoError(t, dir.Remove(context.Background(), 5))
	backend.AssertExpectations(t)
}

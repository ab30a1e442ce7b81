package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/api/apitest"
	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/storage"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AgainstFakeBackend(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.RoleAsObject(true)

	client := api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, logger.NewNop())
	st := storage.NewMemoryStore()
	ctx := context.Background()

	m := auth.NewManager(ctx, client, st, logger.NewNop())
	require.NoError(t, m.Register(ctx, auth.Profile{Name: "Ana", Surname: "Diaz", Email: "ana@example.com", Password: "1234"}))
	require.NoError(t, m.Login(ctx, "ana@example.com", "1234"))
	assert.True(t, m.IsViewer())

	restarted := auth.NewManager(ctx, client, st, logger.NewNop())
	assert.Equal(t, m.Session(), restarted.Session())

	err := restarted.Login(ctx, "ana@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAuth))
	assert.Equal(t, auth.StateUnauthenticated, restarted.State())

	again := auth.NewManager(ctx, client, st, logger.NewNop())
	assert.False(t, again.Session().Authenticated())
}

func TestDirectory_AgainstFakeBackend(t *testing.T) {
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddUser("root", "pw", "Admin")
	srv.AddUser("ana", "1234", "Visor")

	client := api.NewClient(api.Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, logger.NewNop())
	ctx := context.Background()
	m := auth.NewManager(ctx, client, storage.NewMemoryStore(), logger.NewNop())
	dir := auth.NewDirectory(client, m)

	_, err := dir.List(ctx)
	require.ErrorIs(t, err, domain.ErrLoginRequired)

	require.NoError(t, m.Login(ctx, "ana", "1234"))
	_, err = dir.List(ctx)
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, m.Login(ctx, "root", "pw"))
	require.NoError(t, dir.AddOperator(ctx, auth.Profile{Name: "Op", Surname: "Era", Email: "op@example.com", Password: "secret", Role: "Admin"}))
	op, ok := srv.User("op@example.com")
	require.True(t, ok)
	assert.Equal(t, "Operador", op.Role)

	accounts, err := dir.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, domain.Account{ID: 1, Email: "root", Role: domain.RoleAdmin}, accounts[0])
	assert.Equal(t, domain.RoleOperator, accounts[2].Role)
	assert.Equal(t, "Op", accounts[2].Name)

	last := srv.Requests()[len(srv.Requests())-1]
	assert.Equal(t, "1", last.UserID)

	require.ErrorIs(t, dir.Remove(ctx, 1), domain.ErrSelfDelete)
	require.NoError(t, dir.Remove(ctx, op.ID))
	_, ok = srv.User("op@example.com")
	assert.False(t, ok)
}

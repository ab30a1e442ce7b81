package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupSQLite(t *testing.T, path string) *SQLStore {
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLStore_SQLiteContract(t *testing.T) {
	store := setupSQLite(t, filepath.Join(t.TempDir(), "state.db"))
	runStoreContract(t, store)
}

func TestSQLStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.RunMigrations())
	require.NoError(t, first.Set(ctx, KeySession, `{"id":7}`))
	require.NoError(t, first.Close())

	second := setupSQLite(t, path)
	v, ok, err := second.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"id":7}`, v)
}

func TestSQLStore_MigrationsAreIdempotent(t *testing.T) {
	store := setupSQLite(t, filepath.Join(t.TempDir(), "state.db"))
	assert.NoError(t, store.RunMigrations())
}

func TestSQLStore_ClosedDatabaseIsPersistenceError(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations())
	require.NoError(t, store.Close())

	_, _, err = store.Get(context.Background(), KeyCart)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindPersistence))
}

func TestSQLStore_PostgresContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := OpenPostgres(&Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.RunMigrations())

	runStoreContract(t, store)
}

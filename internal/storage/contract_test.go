package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract exercises the behaviour every Store adapter must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key is not an error", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, KeyCart, `{"items":[{"productRef":1,"quantity":2}]}`))

		v, ok, err := s.Get(ctx, KeyCart)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"items":[{"productRef":1,"quantity":2}]}`, v)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, KeySession, "first"))
		require.NoError(t, s.Set(ctx, KeySession, "second"))

		v, ok, err := s.Get(ctx, KeySession)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "second", v)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "temp", "x"))
		require.NoError(t, s.Remove(ctx, "temp"))

		_, ok, err := s.Get(ctx, "temp")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remove missing key", func(t *testing.T) {
		assert.NoError(t, s.Remove(ctx, "never-set"))
	})
}

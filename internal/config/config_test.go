package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fjod/storefront/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noDotEnv(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(noDotEnv(t))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.LogMode)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.MessageTTL)
	assert.Equal(t, StorageSQLite, cfg.Storage)
	assert.Equal(t, "storefront.db", cfg.SQLitePath)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Nil(t, cfg.KafkaBrokers)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STOREFRONT_API_URL", "https://shop.example.com/api")
	t.Setenv("STOREFRONT_MESSAGE_TTL", "2s")
	t.Setenv("STOREFRONT_STORAGE", "Redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load(noDotEnv(t))
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, 2*time.Second, cfg.MessageTTL)
	assert.Equal(t, StorageRedis, cfg.Storage)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STOREFRONT_PROFILE=work\nSTOREFRONT_STORAGE=memory\n"), 0o600))
	for _, key := range []string{"STOREFRONT_PROFILE", "STOREFRONT_STORAGE"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	// process env wins over the file
	t.Setenv("LOG_MODE", "production")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "work", cfg.Profile)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "production", cfg.LogMode)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"STOREFRONT_MESSAGE_TTL": "soon"}},
		{"bad int", map[string]string{"POSTGRES_PORT": "abc"}},
		{"unknown storage", map[string]string{"STOREFRONT_STORAGE": "floppy"}},
		{"bad url", map[string]string{"STOREFRONT_API_URL": "not a url"}},
		{"redis without addr", map[string]string{"STOREFRONT_STORAGE": "redis"}},
		{"mongo without uri", map[string]string{"STOREFRONT_STORAGE": "mongo"}},
		{"postgres without host", map[string]string{"STOREFRONT_STORAGE": "postgres"}},
		{"bad log mode", map[string]string{"LOG_MODE": "verbose"}},
		{"bad bool", map[string]string{"STOREFRONT_KEEP_LATE_ADDITIONS": "sometimes"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(noDotEnv(t))
			assert.Error(t, err)
		})
	}
}

func TestLoad_LogModeAliases(t *testing.T) {
	for _, mode := range []string{"dev", "development", "prod", "PROD", "production"} {
		t.Run(mode, func(t *testing.T) {
			t.Setenv("LOG_MODE", mode)
			cfg, err := Load(noDotEnv(t))
			require.NoError(t, err)
			assert.Equal(t, strings.ToLower(mode), cfg.LogMode)

			_, err = logger.New(cfg.LogMode)
			assert.NoError(t, err)
		})
	}
}

func TestLoad_KeepLateAdditions(t *testing.T) {
	t.Setenv("STOREFRONT_KEEP_LATE_ADDITIONS", "true")
	cfg, err := Load(noDotEnv(t))
	require.NoError(t, err)
	assert.True(t, cfg.KeepLateAdditions)
}

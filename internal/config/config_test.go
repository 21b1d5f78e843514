package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidedeck/internal/schema"
	"slidedeck/internal/storage"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATA_DIR", "DB_DRIVER", "DB_DSN", "MONGO_URI", "MONGO_DB", "INBOX_DIR",
		"SERIES_LENGTH_MODE", "REDIS_ADDR", "REDIS_CHANNEL", "BRIDGE_ADDR", "MCP_ADDR", "MCP_REQUIRE_APPROVAL",
		"HISTORY_LIMIT", "REVISION_LIMIT", "RASTER_WIDTH", "EXPORT_CACHE_SIZE", "AUTOSAVE_INTERVAL",
		"ARTIFACT_S3_ENDPOINT", "ARTIFACT_S3_REGION", "ARTIFACT_S3_ACCESS_KEY", "ARTIFACT_S3_SECRET_KEY",
		"ARTIFACT_S3_BUCKET", "ARTIFACT_S3_USE_SSL", "MINIO_ROOT_USER", "MINIO_ROOT_PASSWORD",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load([]string{"-data-dir", dir})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, storage.DialectSQLite, cfg.DBDriver)
	assert.Equal(t, filepath.Join(dir, "slidedeck.db"), cfg.DBDSN)
	assert.Equal(t, filepath.Join(dir, "inbox"), cfg.InboxDir)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, storage.DefaultRevisionLimit, cfg.RevisionLimit)
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, schema.SeriesLengthIgnore, cfg.SeriesLength)
	assert.Equal(t, "slidedeck", cfg.MongoDB)
	assert.False(t, cfg.RequireApproval)
	assert.False(t, cfg.Artifact.S3Enabled())
	assert.True(t, cfg.Artifact.UseSSL)
	assert.Equal(t, "us-east-1", cfg.Artifact.Region)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATA_DIR", "/srv/decks")
	t.Setenv("DB_DRIVER", "postgresql")
	t.Setenv("DB_DSN", "postgres://u:p@db/decks?sslmode=disable")
	t.Setenv("HISTORY_LIMIT", "5")
	t.Setenv("AUTOSAVE_INTERVAL", "2m")
	t.Setenv("SERIES_LENGTH_MODE", "strict")
	t.Setenv("MCP_REQUIRE_APPROVAL", "true")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "minio:9000")
	t.Setenv("ARTIFACT_S3_USE_SSL", "false")
	t.Setenv("MINIO_ROOT_USER", "admin")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/decks", cfg.DataDir)
	assert.Equal(t, storage.DialectPostgres, cfg.DBDriver)
	assert.Equal(t, "postgres://u:p@db/decks?sslmode=disable", cfg.DBDSN)
	assert.Equal(t, 5, cfg.HistoryLimit)
	assert.Equal(t, 2*time.Minute, cfg.AutosaveInterval)
	assert.Equal(t, schema.SeriesLengthStrict, cfg.SeriesLength)
	assert.True(t, cfg.RequireApproval)

	s3 := cfg.Artifact.S3()
	assert.True(t, cfg.Artifact.S3Enabled())
	assert.Equal(t, "minio:9000", s3.Endpoint)
	assert.Equal(t, "admin", s3.AccessKey)
	assert.Equal(t, "slidedeck-exports", s3.Bucket)
	assert.False(t, s3.UseSSL)
}

func TestLoad_FlagsBeatEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_ADDR", ":9000")
	t.Setenv("INBOX_DIR", "/env/inbox")
	t.Setenv("BRIDGE_ADDR", ":8080")

	cfg, err := Load([]string{"-mcp-addr", ":7000", "-inbox", "/flag/inbox", "-data-dir", t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.MCPAddr)
	assert.Equal(t, ":8080", cfg.BridgeAddr)
	assert.Equal(t, "/flag/inbox", cfg.InboxDir)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"server driver without dsn", map[string]string{"DB_DRIVER": "mysql"}},
		{"bad int", map[string]string{"HISTORY_LIMIT": "lots"}},
		{"bad duration", map[string]string{"AUTOSAVE_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load([]string{"-data-dir", t.TempDir()})
			assert.Error(t, err)
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", firstNonEmpty())
}

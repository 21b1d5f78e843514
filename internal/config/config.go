package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"slidedeck/internal/schema"
	"slidedeck/internal/storage"
)

// Config holds everything the process needs at startup. Values come from
// flags first, then the environment (optionally seeded from .env), then
// defaults.
type Config struct {
	DataDir string

	// Document repository. Mongo wins when MongoURI is set.
	DBDriver storage.Dialect
	DBDSN    string
	MongoURI string
	MongoDB  string

	HistoryLimit     int
	RevisionLimit    int
	AutosaveInterval time.Duration
	InboxDir         string
	SeriesLength     schema.SeriesLengthMode
	RasterWidth      int
	ExportCacheSize  int

	RedisAddr    string
	RedisChannel string

	Artifact ArtifactConfig

	// BridgeAddr switches the host bridge from stdio to a websocket
	// endpoint at /bridge on this address.
	BridgeAddr string

	MCPAddr         string
	RequireApproval bool
}

type ArtifactConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Enabled reports whether exports go to a bucket instead of the data dir.
func (a ArtifactConfig) S3Enabled() bool {
	return a.Endpoint != ""
}

func (a ArtifactConfig) S3() storage.S3Config {
	return storage.S3Config{
		Endpoint:  a.Endpoint,
		Region:    a.Region,
		AccessKey: a.AccessKey,
		SecretKey: a.SecretKey,
		Bucket:    a.Bucket,
		UseSSL:    a.UseSSL,
	}
}

// Load reads .env (if present), then parses args. args excludes the program
// name and any subcommand.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("slidedeck", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "", "directory for the database, inbox and exports")
	dbDriver := fs.String("db-driver", "", "sqlite, postgres or mysql")
	dbDSN := fs.String("db-dsn", "", "database DSN (defaults to <data-dir>/slidedeck.db for sqlite)")
	inboxDir := fs.String("inbox", "", "directory watched for deck JSON files")
	mcpAddr := fs.String("mcp-addr", "", "serve MCP over streamable HTTP on this address")
	bridgeAddr := fs.String("bridge-addr", "", "accept the host over a websocket on this address instead of stdio")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	dir := firstNonEmpty(*dataDir, env("DATA_DIR"), defaultDataDir())
	dialect, err := storage.ParseDialect(firstNonEmpty(*dbDriver, env("DB_DRIVER")))
	if err != nil {
		return nil, err
	}
	dsn := firstNonEmpty(*dbDSN, env("DB_DSN"))
	if dsn == "" {
		if dialect != storage.DialectSQLite {
			return nil, fmt.Errorf("DB_DSN is required for %s", dialect)
		}
		dsn = filepath.Join(dir, "slidedeck.db")
	}

	cfg := &Config{
		DataDir:          dir,
		DBDriver:         dialect,
		DBDSN:            dsn,
		MongoURI:         env("MONGO_URI"),
		MongoDB:          firstNonEmpty(env("MONGO_DB"), "slidedeck"),
		InboxDir:         firstNonEmpty(*inboxDir, env("INBOX_DIR"), filepath.Join(dir, "inbox")),
		SeriesLength:     schema.ParseSeriesLengthMode(env("SERIES_LENGTH_MODE")),
		RedisAddr:        env("REDIS_ADDR"),
		RedisChannel:     env("REDIS_CHANNEL"),
		Artifact:         loadArtifactConfig(),
		BridgeAddr:       firstNonEmpty(*bridgeAddr, env("BRIDGE_ADDR")),
		MCPAddr:          firstNonEmpty(*mcpAddr, env("MCP_ADDR")),
		RequireApproval:  parseBool(env("MCP_REQUIRE_APPROVAL"), false),
		AutosaveInterval: 30 * time.Second,
	}

	ints := []struct {
		key string
		dst *int
		def int
	}{
		{"HISTORY_LIMIT", &cfg.HistoryLimit, 50},
		{"REVISION_LIMIT", &cfg.RevisionLimit, storage.DefaultRevisionLimit},
		{"RASTER_WIDTH", &cfg.RasterWidth, 1280},
		{"EXPORT_CACHE_SIZE", &cfg.ExportCacheSize, 256},
	}
	for _, it := range ints {
		v, err := parseInt(it.key, it.def)
		if err != nil {
			return nil, err
		}
		*it.dst = v
	}

	if raw := env("AUTOSAVE_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("AUTOSAVE_INTERVAL: %w", err)
		}
		cfg.AutosaveInterval = d
	}
	return cfg, nil
}

func loadArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Endpoint:  env("ARTIFACT_S3_ENDPOINT"),
		Region:    firstNonEmpty(env("ARTIFACT_S3_REGION"), "us-east-1"),
		AccessKey: firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(env("ARTIFACT_S3_BUCKET"), "slidedeck-exports"),
		UseSSL:    parseBool(env("ARTIFACT_S3_USE_SSL"), true),
	}
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "slidedeck")
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func parseInt(key string, def int) (int, error) {
	raw := env(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseBool(raw string, def bool) bool {
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

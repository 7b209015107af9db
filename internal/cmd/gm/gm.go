// Package gm parses game-master command flags and launches the runtime.
package gm

import (
	"context"
	"flag"
	"time"

	"github.com/fableguard/fableguard/internal/app"
	entrypoint "github.com/fableguard/fableguard/internal/platform/cmd"
)

// Config holds gm command configuration.
type Config struct {
	Port             int           `env:"FABLEGUARD_GM_PORT" envDefault:"8090"`
	DBPath           string        `env:"FABLEGUARD_GM_DB_PATH" envDefault:"data/gm.db"`
	Workers          int           `env:"FABLEGUARD_GM_WORKERS" envDefault:"4"`
	CatalogPath      string        `env:"FABLEGUARD_GM_CATALOG_PATH"`
	RedisAddr        string        `env:"FABLEGUARD_GM_REDIS_ADDR"`
	OpenAIKey        string        `env:"FABLEGUARD_GM_OPENAI_KEY"`
	OpenAIBaseURL    string        `env:"FABLEGUARD_GM_OPENAI_BASE_URL"`
	OpenAIModel      string        `env:"FABLEGUARD_GM_OPENAI_MODEL"`
	QdrantHost       string        `env:"FABLEGUARD_GM_QDRANT_HOST"`
	QdrantPort       int           `env:"FABLEGUARD_GM_QDRANT_PORT" envDefault:"6334"`
	QdrantVectorSize uint64        `env:"FABLEGUARD_GM_QDRANT_VECTOR_SIZE" envDefault:"1536"`
	BootstrapWorld   string        `env:"FABLEGUARD_GM_BOOTSTRAP_WORLD" envDefault:"greenhollow"`
	BootstrapSeed    int64         `env:"FABLEGUARD_GM_BOOTSTRAP_SEED" envDefault:"1"`
	UpstreamTimeout  time.Duration `env:"FABLEGUARD_GM_UPSTREAM_TIMEOUT" envDefault:"10s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The gm health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The gm SQLite database path")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Pipeline worker count")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "Lua world-content script path")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the intake stream")
	fs.StringVar(&cfg.QdrantHost, "qdrant-host", cfg.QdrantHost, "Qdrant host for narrative memory")
	fs.StringVar(&cfg.BootstrapWorld, "bootstrap-world", cfg.BootstrapWorld, "World seeded on an empty database")
	fs.DurationVar(&cfg.UpstreamTimeout, "upstream-timeout", cfg.UpstreamTimeout, "Per-call AI collaborator timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the gm runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGM, func(ctx context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port:             cfg.Port,
			DBPath:           cfg.DBPath,
			Workers:          cfg.Workers,
			CatalogPath:      cfg.CatalogPath,
			RedisAddr:        cfg.RedisAddr,
			OpenAIKey:        cfg.OpenAIKey,
			OpenAIBaseURL:    cfg.OpenAIBaseURL,
			OpenAIModel:      cfg.OpenAIModel,
			QdrantHost:       cfg.QdrantHost,
			QdrantPort:       cfg.QdrantPort,
			QdrantVectorSize: cfg.QdrantVectorSize,
			BootstrapWorld:   cfg.BootstrapWorld,
			BootstrapSeed:    cfg.BootstrapSeed,
			UpstreamTimeout:  cfg.UpstreamTimeout,
		})
	})
}

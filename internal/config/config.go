package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"artifact-review/internal/blobstore"
	"artifact-review/internal/service/sweeper"
	"artifact-review/pkg/database/postgres"
	"artifact-review/pkg/database/redis"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	defaultPath = ".env"
)

type Config struct {
	HTTPPort      string        `env:"HTTP_PORT" env-default:"8080"`
	GRPCPort      string        `env:"GRPC_PORT" env-default:"50051"`
	JWTSecret     string        `env:"JWT_TOKEN" env-required:"true"`
	OperatorToken string        `env:"OPERATOR_TOKEN" env-required:"true"`
	CORSOrigins   []string      `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	StoreDriver   string        `env:"STORE_DRIVER" env-default:"postgres"`
	IngestLockTTL time.Duration `env:"INGEST_LOCK_TTL" env-default:"15m"`
	// MaxRequestBody caps API uploads; archives may be up to 50MB.
	MaxRequestBody int64 `env:"MAX_REQUEST_BODY" env-default:"53477376"`

	Postgres postgres.Config
	Redis    redis.Config
	Blob     blobstore.Config
	Sweep    sweeper.Config
}

// Load reads path when given and the environment otherwise. Environment
// variables always win over the file. Reading a .env file also exports its
// keys into the process environment.
func Load(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New loads CONFIG_PATH, ./.env when it exists, or just the environment.
func New() (*Config, error) {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return Load(p)
	}
	if _, err := os.Stat(defaultPath); err == nil {
		return Load(defaultPath)
	}
	return Load("")
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.IngestLockTTL <= 0 {
		return errors.New("INGEST_LOCK_TTL must be positive")
	}
	if c.Sweep.StuckAfter < c.IngestLockTTL {
		return fmt.Errorf("SWEEP_STUCK_AFTER (%s) must not be shorter than INGEST_LOCK_TTL (%s)",
			c.Sweep.StuckAfter, c.IngestLockTTL)
	}
	return nil
}

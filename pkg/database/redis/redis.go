package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Host        string        `env:"REDIS_HOST" env-default:"localhost"`
	Port        string        `env:"REDIS_PORT" env-default:"6380"`
	Password    string        `env:"REDIS_PASSWORD" env-default:""`
	Db          int           `env:"REDIS_DB" env-default:"0"`
	DialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func New(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.Db,
		DialTimeout: cfg.DialTimeout,
	})
}

// Connect builds a client and verifies the server answers.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := New(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cannot connect to redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

package BlackListRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BlackListRepo holds revoked access tokens by their ID until they would have
// expired anyway.
type BlackListRepo struct {
	Client *redis.Client
}

func NewBlackListRepo(client *redis.Client) *BlackListRepo {
	return &BlackListRepo{
		Client: client,
	}
}

func (r *BlackListRepo) buildKey(tokenID string) string {
	return fmt.Sprintf("artifact-review:revoked:%s", tokenID)
}

// Revoke blacklists tokenID for ttl. A non-positive ttl means the token has
// already expired and nothing is stored.
func (r *BlackListRepo) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.Client.Set(ctx, r.buildKey(tokenID), "1", ttl).Err()
}

func (r *BlackListRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	err := r.Client.Get(ctx, r.buildKey(tokenID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

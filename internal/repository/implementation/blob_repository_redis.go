package implementation

import (
	"context"
	"errors"
	"fmt"

	"product-rec-agent/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

type RedisBlobRepository struct {
	client *redis.Client
}

func NewRedisBlobRepository(client *redis.Client) contract.BlobRepository {
	return &RedisBlobRepository{client: client}
}

func (r *RedisBlobRepository) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (r *RedisBlobRepository) Put(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

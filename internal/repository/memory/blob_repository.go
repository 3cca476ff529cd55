package memory

import (
	"context"

	"product-rec-agent/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// BlobRepository keeps blobs in process memory. Contents are lost on restart.
type BlobRepository struct {
	cache *cache.Cache
}

func NewBlobRepository() contract.BlobRepository {
	return &BlobRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *BlobRepository) Get(_ context.Context, key string) ([]byte, error) {
	if x, found := r.cache.Get(key); found {
		b := x.([]byte)
		return append([]byte{}, b...), nil
	}
	return nil, nil
}

func (r *BlobRepository) Put(_ context.Context, key string, value []byte) error {
	r.cache.Set(key, append([]byte{}, value...), cache.NoExpiration)
	return nil
}

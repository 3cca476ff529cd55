package contract

import "context"

// BlobRepository is a single-slot key/value store. Get returns (nil, nil) when the key is absent.
type BlobRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

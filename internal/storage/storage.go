package storage

import (
	"context"
)

// Storage keeps captured artifacts on the composer side. The capture server
// itself never persists anything.
type Storage interface {
	// Put stores data with the given key and returns the storage URL
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get retrieves data from the given storage URL
	Get(ctx context.Context, url string) ([]byte, error)
	// Delete removes the object at the given storage URL. Deleting a missing
	// object is not an error.
	Delete(ctx context.Context, url string) error
}

// Package localstore caches the active training log on the local machine.
package localstore

import (
	"context"
	"errors"
)

var (
	ErrSerialization        = errors.New("active log could not be serialized")
	ErrStorageQuotaExceeded = errors.New("local storage quota exceeded")
)

// KeyValue is a small string-keyed byte store.
type KeyValue interface {
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set overwrites the key. Values over the backend quota fail with ErrStorageQuotaExceeded.
	Set(ctx context.Context, key string, value []byte) error
	// Delete succeeds when the key is absent.
	Delete(ctx context.Context, key string) error
}

func checkQuota(value []byte, maxBytes int64) error {
	if maxBytes > 0 && int64(len(value)) > maxBytes {
		return ErrStorageQuotaExceeded
	}
	return nil
}

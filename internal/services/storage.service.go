package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imagevariants/internal/metrics"
	"imagevariants/internal/storage"
	"imagevariants/internal/types"
)

// objectStore bounds every storage call with a timeout and maps failures onto
// the domain error kinds.
type objectStore struct {
	storage storage.Storage
	timeout time.Duration
}

func newObjectStore(s storage.Storage, timeout time.Duration) objectStore {
	if timeout <= 0 {
		timeout = DefaultStorageTimeout
	}
	return objectStore{storage: s, timeout: timeout}
}

func (o objectStore) get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	data, err := o.storage.Get(ctx, key)
	metrics.RecordStorage("get", err)
	if err != nil {
		return nil, storageError(types.ErrSourceUnavailable, key, err)
	}
	return data, nil
}

func (o objectStore) put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	url, err := o.storage.Put(ctx, key, data, contentType)
	metrics.RecordStorage("put", err)
	if err != nil {
		return "", storageError(types.ErrStorageWriteFailure, key, err)
	}
	return url, nil
}

// delete treats a missing object as already deleted.
func (o objectStore) delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	err := o.storage.Delete(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		err = nil
	}
	metrics.RecordStorage("delete", err)
	if err != nil {
		return storageError(types.ErrStorageWriteFailure, key, err)
	}
	return nil
}

func storageError(kind error, key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: object %q: %w", kind, types.ErrStorageTimeout, key, err)
	}
	return fmt.Errorf("%w: object %q: %w", kind, key, err)
}

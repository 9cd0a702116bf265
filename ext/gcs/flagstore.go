// Package gcs backs the pipeline's shared-state contracts (idempotency
// flags, tag locks, pending tag requests) with flag files in a blob bucket.
// Any gocloud driver works; production uses gs://, tests use mem://.
package gcs

import (
	"context"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/odpf/tablevault/internal/errors"
)

const entityFlagStore = "flag_store"

// FlagStore stores membership of a key as existence of a zero-byte object.
type FlagStore struct {
	bucket *blob.Bucket
	prefix string
}

func NewFlagStore(bucket *blob.Bucket, prefix string) *FlagStore {
	return &FlagStore{
		bucket: bucket,
		prefix: prefix,
	}
}

func (f *FlagStore) Add(ctx context.Context, key string) error {
	if err := f.bucket.WriteAll(ctx, f.path(key), []byte{}, nil); err != nil {
		return errors.InternalError(entityFlagStore, "failed to write flag "+key, err)
	}
	return nil
}

func (f *FlagStore) Contains(ctx context.Context, key string) (bool, error) {
	exists, err := f.bucket.Exists(ctx, f.path(key))
	if err != nil {
		return false, errors.InternalError(entityFlagStore, "failed to check flag "+key, err)
	}
	return exists, nil
}

func (f *FlagStore) Remove(ctx context.Context, key string) error {
	err := f.bucket.Delete(ctx, f.path(key))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return errors.InternalError(entityFlagStore, "failed to remove flag "+key, err)
	}
	return nil
}

func (f *FlagStore) path(key string) string {
	return f.prefix + "/" + key
}

// Package catalog persists per-table policy records as JSON blobs keyed by
// the table's dotted name. The record is the policy plus its backup state;
// only the tag stage writes it.
package catalog

import (
	"context"
	"encoding/json"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/internal/errors"
)

const entityCatalog = "catalog"

type BlobCatalog struct {
	bucket *blob.Bucket
	prefix string
}

func NewBlobCatalog(bucket *blob.Bucket, prefix string) *BlobCatalog {
	return &BlobCatalog{
		bucket: bucket,
		prefix: prefix,
	}
}

// GetAttachedPolicy returns the policy record attached to the table, or nil
// when the table has never been tagged.
func (c *BlobCatalog) GetAttachedPolicy(ctx context.Context, table resource.TableSpec) (*policy.BackupPolicy, error) {
	raw, err := c.bucket.ReadAll(ctx, c.path(table))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, errors.MarkRetryable(errors.InternalError(entityCatalog, "failed to read policy for "+table.FullName(), err))
	}
	var p policy.BackupPolicy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.InternalError(entityCatalog, "failed to decode policy for "+table.FullName(), err)
	}
	return &p, nil
}

func (c *BlobCatalog) CreateOrUpdatePolicy(ctx context.Context, table resource.TableSpec, p policy.BackupPolicy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.InternalError(entityCatalog, "failed to encode policy for "+table.FullName(), err)
	}
	if err := c.bucket.WriteAll(ctx, c.path(table), raw, nil); err != nil {
		return errors.MarkRetryable(errors.InternalError(entityCatalog, "failed to write policy for "+table.FullName(), err))
	}
	return nil
}

func (c *BlobCatalog) path(table resource.TableSpec) string {
	return c.prefix + "/" + table.FullName() + ".json"
}

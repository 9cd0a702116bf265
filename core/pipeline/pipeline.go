// Package pipeline holds the stage handlers of the backup control plane.
// Each handler is a pure function from (request, delivery id) to a
// response plus outbound messages for the next stage; the transport adapter
// around it owns publishing, ack/nack and redelivery.
package pipeline

import (
	"context"
	"time"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
)

const (
	EntityPipeline = "pipeline"

	StageDispatch        = "dispatcher"
	StageDatasetDispatch = "dataset-dispatcher"
	StageConfigure       = "configurator"
	StageBQSnapshot      = "bq-snapshoter"
	StageGCSSnapshot     = "gcs-snapshoter"
	StageTag             = "tagger"
)

// FlagStore is the persistent key set backing message deduplication.
type FlagStore interface {
	Add(ctx context.Context, key string) error
	Contains(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

// TrackingLock is the exclusive per-tracking-id lock around tag writes.
// TryAcquire fails with an already-exists error when the lock is held.
type TrackingLock interface {
	TryAcquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Catalog persists the per-table policy record and its backup state.
type Catalog interface {
	GetAttachedPolicy(ctx context.Context, table resource.TableSpec) (*policy.BackupPolicy, error)
	CreateOrUpdatePolicy(ctx context.Context, table resource.TableSpec, p policy.BackupPolicy) error
}

// SnapshotExecutor runs the actual backup operations. CreateSnapshot blocks
// until the copy job reaches a terminal state; SubmitExport only submits.
type SnapshotExecutor interface {
	CreateSnapshot(ctx context.Context, jobID string, source resource.TableSpec, sourceInstant time.Time,
		destination resource.TableSpec, expiry time.Time) error
	SubmitExport(ctx context.Context, jobID string, source resource.TableSpec, sourceInstant time.Time,
		destinationURI string, p policy.BackupPolicy, labels map[string]string) error
}

// PendingTagStore parks a tag request until the async export job completes.
type PendingTagStore interface {
	Put(ctx context.Context, jobID string, req TagRequest) error
	Get(ctx context.Context, jobID string) (*TagRequest, error)
}

// DatasetResolver is the dataset-granularity face of the scope resolver.
type DatasetResolver interface {
	ResolveDatasets(ctx context.Context, scope resource.Scope) ([]resource.DatasetSpec, error)
}

// TableResolver is the table-granularity face of the scope resolver.
type TableResolver interface {
	ResolveTables(ctx context.Context, scope resource.Scope) ([]resource.TableSpec, error)
}

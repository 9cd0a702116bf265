package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
)

type Lister struct {
	mock.Mock
}

func (l *Lister) ListProjects(ctx context.Context, folderID string) ([]string, error) {
	args := l.Called(ctx, folderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (l *Lister) ListDatasets(ctx context.Context, projectID string) ([]string, error) {
	args := l.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (l *Lister) ListTables(ctx context.Context, dataset resource.DatasetSpec) ([]string, error) {
	args := l.Called(ctx, dataset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type Catalog struct {
	mock.Mock
}

func (c *Catalog) GetAttachedPolicy(ctx context.Context, table resource.TableSpec) (*policy.BackupPolicy, error) {
	args := c.Called(ctx, table)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*policy.BackupPolicy), args.Error(1)
}

func (c *Catalog) CreateOrUpdatePolicy(ctx context.Context, table resource.TableSpec, p policy.BackupPolicy) error {
	return c.Called(ctx, table, p).Error(0)
}

type SnapshotExecutor struct {
	mock.Mock
}

func (e *SnapshotExecutor) CreateSnapshot(ctx context.Context, jobID string, source resource.TableSpec, sourceInstant time.Time,
	destination resource.TableSpec, expiry time.Time,
) error {
	return e.Called(ctx, jobID, source, sourceInstant, destination, expiry).Error(0)
}

func (e *SnapshotExecutor) SubmitExport(ctx context.Context, jobID string, source resource.TableSpec, sourceInstant time.Time,
	destinationURI string, p policy.BackupPolicy, labels map[string]string,
) error {
	return e.Called(ctx, jobID, source, sourceInstant, destinationURI, p, labels).Error(0)
}

type PendingTagStore struct {
	mock.Mock
}

func (s *PendingTagStore) Put(ctx context.Context, jobID string, req pipeline.TagRequest) error {
	return s.Called(ctx, jobID, req).Error(0)
}

func (s *PendingTagStore) Get(ctx context.Context, jobID string) (*pipeline.TagRequest, error) {
	args := s.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pipeline.TagRequest), args.Error(1)
}

type TrackingLock struct {
	mock.Mock
}

func (l *TrackingLock) TryAcquire(ctx context.Context, key string) error {
	return l.Called(ctx, key).Error(0)
}

func (l *TrackingLock) Release(ctx context.Context, key string) error {
	return l.Called(ctx, key).Error(0)
}

type DatasetResolver struct {
	mock.Mock
}

func (r *DatasetResolver) ResolveDatasets(ctx context.Context, scope resource.Scope) ([]resource.DatasetSpec, error) {
	args := r.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resource.DatasetSpec), args.Error(1)
}

type TableResolver struct {
	mock.Mock
}

func (r *TableResolver) ResolveTables(ctx context.Context, scope resource.Scope) ([]resource.TableSpec, error) {
	args := r.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resource.TableSpec), args.Error(1)
}

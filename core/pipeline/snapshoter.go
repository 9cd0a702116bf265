package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/core/schedule"
	"github.com/odpf/tablevault/internal/telemetry"
)

// BQSnapshoter executes the in-place snapshot method: a copy of the source
// table read at the time-travel instant into the policy's storage dataset,
// with an expiry. The copy blocks until the job finishes, so a tag request
// is emitted right away.
type BQSnapshoter struct {
	l        log.Logger
	guard    *Guard
	executor SnapshotExecutor
	now      func() time.Time
}

func NewBQSnapshoter(logger log.Logger, guard *Guard, executor SnapshotExecutor) *BQSnapshoter {
	return &BQSnapshoter{
		l:        logger,
		guard:    guard,
		executor: executor,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *BQSnapshoter) Handle(ctx context.Context, req SnapshotRequest, deliveryID string) (*TagRequest, error) {
	table, err := resource.ParseTableSpec(req.TargetTable)
	if err != nil {
		return nil, err
	}
	// a malformed policy must never silently skip a backup
	if err := req.Policy.Validate(); err != nil {
		return nil, err
	}

	duplicate, err := s.guard.CheckAndMark(ctx, StageBQSnapshot, deliveryID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		s.l.Info(fmt.Sprintf("snapshot delivery %s for %s already processed, skipping", deliveryID, table.FullName()))
		return nil, nil
	}

	operationAt := s.now()
	instant := schedule.TimeTravelInstant(req.Policy.TimeTravelOffsetDays, operationAt)
	destination := resource.TableSpec{
		Project: req.Policy.StorageProject,
		Dataset: req.Policy.StorageDataset,
		Table:   snapshotTableName(table, instant),
	}
	expiry := operationAt.Add(time.Duration(req.Policy.SnapshotExpirationDays*24) * time.Hour)
	jobID := req.TrackingID + "-bq"

	if req.IsDryRun {
		s.l.Info(fmt.Sprintf("dry run %s: would snapshot %s to %s", req.RunID, table.AtTime(instant), destination.FullName()))
	} else {
		if err := s.executor.CreateSnapshot(ctx, jobID, table, instant, destination, expiry); err != nil {
			return nil, err
		}
		telemetry.NewCounter("tablevault_snapshots_total", map[string]string{"method": "bigquery_snapshot"}).Inc()
	}

	return &TagRequest{
		RunID:          req.RunID,
		TrackingID:     req.TrackingID,
		TargetTable:    req.TargetTable,
		Policy:         req.Policy,
		AppliedMethod:  policy.MethodBigQuerySnapshot,
		DestinationURI: destination.URN(),
		OperationAt:    operationAt,
		IsDryRun:       req.IsDryRun,
	}, nil
}

// GCSSnapshoter executes the export method. The export job is asynchronous,
// so the tag request is parked in the pending store keyed by job id before
// submission; the job-completion notification republishes it later. Only a
// dry run returns the tag request inline, to keep a rehearsal flowing end to
// end without a job.
type GCSSnapshoter struct {
	l        log.Logger
	guard    *Guard
	executor SnapshotExecutor
	pending  PendingTagStore
	now      func() time.Time
}

func NewGCSSnapshoter(logger log.Logger, guard *Guard, executor SnapshotExecutor, pending PendingTagStore) *GCSSnapshoter {
	return &GCSSnapshoter{
		l:        logger,
		guard:    guard,
		executor: executor,
		pending:  pending,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *GCSSnapshoter) Handle(ctx context.Context, req SnapshotRequest, deliveryID string) (*TagRequest, error) {
	table, err := resource.ParseTableSpec(req.TargetTable)
	if err != nil {
		return nil, err
	}
	if err := req.Policy.Validate(); err != nil {
		return nil, err
	}

	duplicate, err := s.guard.CheckAndMark(ctx, StageGCSSnapshot, deliveryID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		s.l.Info(fmt.Sprintf("export delivery %s for %s already processed, skipping", deliveryID, table.FullName()))
		return nil, nil
	}

	operationAt := s.now()
	instant := schedule.TimeTravelInstant(req.Policy.TimeTravelOffsetDays, operationAt)
	destinationURI := exportDestinationURI(req.Policy.GCSStorageLocation, table, instant)
	jobID := req.TrackingID + "-export"

	tagReq := TagRequest{
		RunID:          req.RunID,
		TrackingID:     req.TrackingID,
		TargetTable:    req.TargetTable,
		Policy:         req.Policy,
		AppliedMethod:  policy.MethodGCSExport,
		DestinationURI: destinationURI,
		OperationAt:    operationAt,
		IsDryRun:       req.IsDryRun,
	}

	if req.IsDryRun {
		s.l.Info(fmt.Sprintf("dry run %s: would export %s to %s", req.RunID, table.AtTime(instant), destinationURI))
		return &tagReq, nil
	}

	// parked before submission so a completion notification racing the
	// submit call still finds it
	if err := s.pending.Put(ctx, jobID, tagReq); err != nil {
		return nil, err
	}
	labels := map[string]string{
		"tracking_id": strings.ToLower(req.TrackingID),
		"run_id":      strings.ToLower(req.RunID),
	}
	if err := s.executor.SubmitExport(ctx, jobID, table, instant, destinationURI, req.Policy, labels); err != nil {
		return nil, err
	}
	telemetry.NewCounter("tablevault_snapshots_total", map[string]string{"method": "gcs_export"}).Inc()
	return nil, nil
}

func snapshotTableName(source resource.TableSpec, instant time.Time) string {
	return fmt.Sprintf("%s_%s_%d", source.Dataset, source.Table, instant.UnixMilli())
}

func exportDestinationURI(base string, source resource.TableSpec, instant time.Time) string {
	return fmt.Sprintf("%s/%s/%d/*", strings.TrimSuffix(base, "/"), source.FullName(), instant.UnixMilli())
}

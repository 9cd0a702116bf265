package pipeline

import (
	"context"
	"fmt"

	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/internal/errors"
	"github.com/odpf/tablevault/internal/telemetry"
)

// Tagger merges one operation outcome into the policy record's backup state
// and writes it back to the catalog. A BOTH-method resource produces two tag
// deliveries that race on the same record, so the write is a read-modify-
// write under an exclusive per-tracking-id lock. Lock contention is a
// retryable failure, not a poison message.
type Tagger struct {
	l       log.Logger
	guard   *Guard
	lock    TrackingLock
	catalog Catalog
}

func NewTagger(logger log.Logger, guard *Guard, lock TrackingLock, catalog Catalog) *Tagger {
	return &Tagger{
		l:       logger,
		guard:   guard,
		lock:    lock,
		catalog: catalog,
	}
}

func (t *Tagger) Handle(ctx context.Context, req TagRequest, deliveryID string) error {
	table, err := resource.ParseTableSpec(req.TargetTable)
	if err != nil {
		return err
	}

	duplicate, err := t.guard.CheckAndMark(ctx, StageTag, deliveryID)
	if err != nil {
		return err
	}
	if duplicate {
		t.l.Info(fmt.Sprintf("tag delivery %s for %s already processed, skipping", deliveryID, table.FullName()))
		return nil
	}

	if err := t.lock.TryAcquire(ctx, req.TrackingID); err != nil {
		if errors.IsErrorType(err, errors.ErrAlreadyExists) {
			return errors.MarkRetryable(err)
		}
		return err
	}
	defer func() {
		if err := t.lock.Release(ctx, req.TrackingID); err != nil {
			t.l.Error(fmt.Sprintf("releasing tag lock %s failed: %s", req.TrackingID, err.Error()))
		}
	}()

	updated := req.Policy
	attached, err := t.catalog.GetAttachedPolicy(ctx, table)
	if err != nil {
		return err
	}
	if attached != nil {
		// keep state written by the sibling method's tagger
		updated.State = attached.State
	}
	if req.OperationAt.After(updated.State.LastBackupAt) {
		updated.State.LastBackupAt = req.OperationAt
	}
	switch req.AppliedMethod {
	case policy.MethodBigQuerySnapshot:
		updated.State.LastBQSnapshotURI = req.DestinationURI
	case policy.MethodGCSExport:
		updated.State.LastGCSExportURI = req.DestinationURI
	default:
		return errors.InvalidArgument(EntityPipeline, "tag request has no applicable method "+req.AppliedMethod.String())
	}

	if req.IsDryRun {
		t.l.Info(fmt.Sprintf("dry run %s: would tag %s with %s backup at %s",
			req.RunID, table.FullName(), req.AppliedMethod, req.OperationAt.Format("2006-01-02T15:04:05Z07:00")))
		return nil
	}

	if err := t.catalog.CreateOrUpdatePolicy(ctx, table, updated); err != nil {
		return err
	}
	telemetry.NewCounter("tablevault_tags_total", map[string]string{"method": string(req.AppliedMethod)}).Inc()
	t.l.Info(fmt.Sprintf("run %s tagged %s with %s backup at %s", req.RunID, table.FullName(), req.AppliedMethod, req.DestinationURI))
	return nil
}

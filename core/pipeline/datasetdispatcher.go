package pipeline

import (
	"context"
	"fmt"

	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/core/run"
	"github.com/odpf/tablevault/internal/errors"
)

// DatasetDispatcher resolves the tables of its assigned dataset, or accepts
// the pre-supplied table list, and emits one configure message per table,
// each with a freshly minted tracking id.
type DatasetDispatcher struct {
	l        log.Logger
	guard    *Guard
	resolver TableResolver
}

func NewDatasetDispatcher(logger log.Logger, guard *Guard, resolver TableResolver) *DatasetDispatcher {
	return &DatasetDispatcher{
		l:        logger,
		guard:    guard,
		resolver: resolver,
	}
}

func (d *DatasetDispatcher) Handle(ctx context.Context, req DatasetDispatchRequest, deliveryID string) ([]ConfigureRequest, error) {
	runID, err := run.IDFrom(req.RunID)
	if err != nil {
		return nil, err
	}
	if req.Dataset == "" && len(req.TablesInclude) == 0 {
		return nil, errors.InvalidArgument(EntityPipeline, "dataset dispatch request names no dataset and no tables")
	}

	duplicate, err := d.guard.CheckAndMark(ctx, StageDatasetDispatch, deliveryID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		d.l.Info(fmt.Sprintf("dataset dispatch delivery %s already processed, skipping", deliveryID))
		return nil, nil
	}

	scope := resource.Scope{
		TablesInclude: req.TablesInclude,
		TablesExclude: req.TablesExclude,
	}
	if len(req.TablesInclude) == 0 {
		scope.DatasetsInclude = []string{req.Dataset}
	}

	tables, err := d.resolver.ResolveTables(ctx, scope)
	if err != nil {
		return nil, err
	}

	out := make([]ConfigureRequest, 0, len(tables))
	for _, table := range tables {
		out = append(out, ConfigureRequest{
			RunID:       req.RunID,
			TrackingID:  run.NewTrackingID(runID).String(),
			TargetTable: table.FullName(),
			IsForceRun:  req.IsForceRun,
			IsDryRun:    req.IsDryRun,
		})
	}
	d.l.Info(fmt.Sprintf("run %s dataset %s resolved to %d tables", runID, req.Dataset, len(out)))
	return out, nil
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/core/run"
	"github.com/odpf/tablevault/internal/errors"
)

// Dispatcher is the guarded entry stage. It expands the scope to dataset
// granularity and fans out one message per dataset, or passes an explicit
// table list straight through.
type Dispatcher struct {
	l        log.Logger
	guard    *Guard
	resolver DatasetResolver
}

func NewDispatcher(logger log.Logger, guard *Guard, resolver DatasetResolver) *Dispatcher {
	return &Dispatcher{
		l:        logger,
		guard:    guard,
		resolver: resolver,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, req DispatchRequest, deliveryID string) ([]DatasetDispatchRequest, error) {
	runID, err := run.IDFrom(req.RunID)
	if err != nil {
		return nil, err
	}
	if req.Scope.IsEmpty() {
		return nil, errors.InvalidArgument(EntityPipeline, "dispatch request has an empty scope")
	}

	duplicate, err := d.guard.CheckAndMark(ctx, StageDispatch, deliveryID)
	if err != nil {
		return nil, err
	}
	if duplicate {
		// a redelivered dispatch would duplicate the entire fan-out, which
		// means something upstream already went wrong
		return nil, errors.FailedPrecondition(EntityPipeline,
			fmt.Sprintf("dispatch delivery %s for run %s was already processed", deliveryID, runID))
	}

	if len(req.Scope.TablesInclude) > 0 {
		d.l.Info(fmt.Sprintf("run %s dispatching %d explicit tables", runID, len(req.Scope.TablesInclude)))
		return []DatasetDispatchRequest{{
			RunID:         req.RunID,
			TablesInclude: req.Scope.TablesInclude,
			TablesExclude: req.Scope.TablesExclude,
			IsForceRun:    req.IsForceRun,
			IsDryRun:      req.IsDryRun,
		}}, nil
	}

	datasets, err := d.resolver.ResolveDatasets(ctx, req.Scope)
	if err != nil {
		return nil, err
	}

	out := make([]DatasetDispatchRequest, 0, len(datasets))
	for _, dataset := range datasets {
		out = append(out, DatasetDispatchRequest{
			RunID:         req.RunID,
			Dataset:       dataset.FullName(),
			TablesExclude: req.Scope.TablesExclude,
			IsForceRun:    req.IsForceRun,
			IsDryRun:      req.IsDryRun,
		})
	}
	d.l.Info(fmt.Sprintf("run %s dispatching %d datasets", runID, len(out)))
	return out, nil
}

package pipeline

import (
	"context"
	"fmt"

	"github.com/odpf/salt/log"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/core/run"
	"github.com/odpf/tablevault/core/schedule"
	"github.com/odpf/tablevault/internal/telemetry"
)

// Configurator resolves the effective policy for one table and decides
// whether a backup is due at the run's reference time. When due it emits one
// snapshot request per method implied by the policy, each carrying the full
// resolved policy so downstream stages are self-contained.
type Configurator struct {
	l        log.Logger
	guard    *Guard
	catalog  Catalog
	fallback policy.FallbackPolicies
}

func NewConfigurator(logger log.Logger, guard *Guard, catalog Catalog, fallback policy.FallbackPolicies) *Configurator {
	return &Configurator{
		l:        logger,
		guard:    guard,
		catalog:  catalog,
		fallback: fallback,
	}
}

func (c *Configurator) Handle(ctx context.Context, req ConfigureRequest, deliveryID string) (ConfigureResponse, error) {
	runID, err := run.IDFrom(req.RunID)
	if err != nil {
		return ConfigureResponse{}, err
	}
	table, err := resource.ParseTableSpec(req.TargetTable)
	if err != nil {
		return ConfigureResponse{}, err
	}

	duplicate, err := c.guard.CheckAndMark(ctx, StageConfigure, deliveryID)
	if err != nil {
		return ConfigureResponse{}, err
	}
	if duplicate {
		c.l.Info(fmt.Sprintf("configure delivery %s for %s already processed, skipping", deliveryID, table.FullName()))
		return ConfigureResponse{}, nil
	}

	attached, err := c.catalog.GetAttachedPolicy(ctx, table)
	if err != nil {
		return ConfigureResponse{}, err
	}

	resolved := policy.Resolve(table, attached, c.fallback)
	if err := resolved.Validate(); err != nil {
		return ConfigureResponse{}, err
	}

	due, err := schedule.IsDue(req.IsForceRun, resolved.Cron, runID.ReferenceTime(), resolved.Source, resolved.State.LastBackupAt)
	if err != nil {
		return ConfigureResponse{}, err
	}

	resp := ConfigureResponse{Due: due, Policy: resolved}
	if !due {
		c.l.Info(fmt.Sprintf("run %s table %s not due, next trigger is after reference time", runID, table.FullName()))
		telemetry.NewCounter("tablevault_tables_skipped_total", map[string]string{"reason": "not_due"}).Inc()
		return resp, nil
	}

	if resolved.Method.IncludesBigQuerySnapshot() {
		resp.BigQuery = &SnapshotRequest{
			RunID:       req.RunID,
			TrackingID:  req.TrackingID,
			TargetTable: req.TargetTable,
			Policy:      resolved,
			IsForceRun:  req.IsForceRun,
			IsDryRun:    req.IsDryRun,
		}
	}
	if resolved.Method.IncludesGCSExport() {
		resp.GCS = &SnapshotRequest{
			RunID:       req.RunID,
			TrackingID:  req.TrackingID,
			TargetTable: req.TargetTable,
			Policy:      resolved,
			IsForceRun:  req.IsForceRun,
			IsDryRun:    req.IsDryRun,
		}
	}
	c.l.Info(fmt.Sprintf("run %s table %s due via method %s", runID, table.FullName(), resolved.Method))
	return resp, nil
}

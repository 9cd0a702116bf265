package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/odpf/salt/log"
	"github.com/stretchr/testify/assert"

	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/internal/errors"
	"github.com/odpf/tablevault/mock"
)

func snapshotOnlyPolicy() policy.BackupPolicy {
	return policy.BackupPolicy{
		Cron:                   "0 13 * * *",
		Method:                 policy.MethodBigQuerySnapshot,
		TimeTravelOffsetDays:   policy.TimeTravelOffset(3),
		Source:                 policy.SourceSystem,
		StorageProject:         "t-backup",
		StorageDataset:         "vault",
		SnapshotExpirationDays: 30,
	}
}

func bothMethodsPolicy() policy.BackupPolicy {
	header := false
	p := snapshotOnlyPolicy()
	p.Method = policy.MethodBoth
	p.GCSStorageLocation = "gs://t-backup-exports"
	p.GCSExportFormat = policy.FormatCSV
	p.CSVFieldDelimiter = ","
	p.CSVExportHeader = &header
	return p
}

func TestConfigurator(t *testing.T) {
	ctx := context.Background()
	logger := log.NewNoop()
	table := resource.TableSpec{Project: "p1", Dataset: "d1", Table: "t1"}
	req := pipeline.ConfigureRequest{
		RunID:       testRunID,
		TrackingID:  testRunID + "-3e7f8a32-1bc1-4c5c-9d3e-111111111111",
		TargetTable: "p1.d1.t1",
	}

	t.Run("a never backed up table is due and yields a snapshot request", func(t *testing.T) {
		catalog := new(mock.Catalog)
		catalog.On("GetAttachedPolicy", ctx, table).Return(nil, nil)

		configurator := pipeline.NewConfigurator(logger, newTestGuard(), catalog,
			policy.FallbackPolicies{Default: snapshotOnlyPolicy()})
		resp, err := configurator.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.True(t, resp.Due)
		assert.NotNil(t, resp.BigQuery)
		assert.Nil(t, resp.GCS)
		assert.Equal(t, req.TrackingID, resp.BigQuery.TrackingID)
		assert.Equal(t, policy.MethodBigQuerySnapshot, resp.BigQuery.Policy.Method)
	})

	t.Run("a recently backed up table is not due", func(t *testing.T) {
		attached := snapshotOnlyPolicy()
		attached.State.LastBackupAt = time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC)
		catalog := new(mock.Catalog)
		catalog.On("GetAttachedPolicy", ctx, table).Return(&attached, nil)

		configurator := pipeline.NewConfigurator(logger, newTestGuard(), catalog,
			policy.FallbackPolicies{Default: snapshotOnlyPolicy()})
		resp, err := configurator.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.False(t, resp.Due)
		assert.Nil(t, resp.BigQuery)
		assert.Nil(t, resp.GCS)
	})

	t.Run("an overdue table is due again", func(t *testing.T) {
		attached := snapshotOnlyPolicy()
		attached.State.LastBackupAt = time.Date(2023, 4, 29, 13, 0, 0, 0, time.UTC)
		catalog := new(mock.Catalog)
		catalog.On("GetAttachedPolicy", ctx, table).Return(&attached, nil)

		configurator := pipeline.NewConfigurator(logger, newTestGuard(), catalog,
			policy.FallbackPolicies{Default: snapshotOnlyPolicy()})
		resp, err := configurator.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.True(t, resp.Due)
	})

	t.Run("a both-methods policy yields two snapshot requests", func(t *testing.T) {
		catalog := new(mock.Catalog)
		catalog.On("GetAttachedPolicy", ctx, table).Return(nil, nil)

		configurator := pipeline.NewConfigurator(logger, newTestGuard(), catalog,
			policy.FallbackPolicies{Default: bothMethodsPolicy()})
		resp, err := configurator.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.NotNil(t, resp.BigQuery)
		assert.NotNil(t, resp.GCS)
		assert.Equal(t, resp.BigQuery.Policy, resp.GCS.Policy)
	})

	t.Run("a force run overrides the cron decision", func(t *testing.T) {
		attached := snapshotOnlyPolicy()
		attached.State.LastBackupAt = time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC)
		catalog := new(mock.Catalog)
		catalog.On("GetAttachedPolicy", ctx, table).Return(&attached, nil)

		forced := req
		forced.IsForceRun = true
		configurator := pipeline.NewConfigurator(logger, newTestGuard(), catalog,
			policy.FallbackPolicies{Default: snapshotOnlyPolicy()})
		resp, err := configurator.Handle(ctx, forced, "msg-1")
		assert.Nil(t, err)
		assert.True(t, resp.Due)
		assert.True(t, resp.BigQuery.IsForceRun)
	})

	t.Run("an invalid resolved policy is a permanent failure", func(t *testing.T) {
		broken := snapshotOnlyPolicy()
		broken.StorageProject = ""
		catalog := new(mock.Catalog)
		catalog.On("GetAttachedPolicy", ctx, table).Return(nil, nil)

		configurator := pipeline.NewConfigurator(logger, newTestGuard(), catalog,
			policy.FallbackPolicies{Default: broken})
		_, err := configurator.Handle(ctx, req, "msg-1")
		assert.NotNil(t, err)
		assert.False(t, errors.IsRetryable(err))
	})

	t.Run("redelivery is a silent no-op", func(t *testing.T) {
		catalog := new(mock.Catalog)
		catalog.On("GetAttachedPolicy", ctx, table).Return(nil, nil).Once()

		configurator := pipeline.NewConfigurator(logger, newTestGuard(), catalog,
			policy.FallbackPolicies{Default: snapshotOnlyPolicy()})

		resp, err := configurator.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.True(t, resp.Due)

		resp, err = configurator.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.False(t, resp.Due)
		assert.Nil(t, resp.BigQuery)
	})
}

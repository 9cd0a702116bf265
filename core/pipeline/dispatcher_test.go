package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/odpf/salt/log"
	"github.com/stretchr/testify/assert"

	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/core/run"
	"github.com/odpf/tablevault/internal/errors"
	"github.com/odpf/tablevault/mock"
)

var testRunID = run.NewID(time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC), run.KindHeartbeat).String()

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	logger := log.NewNoop()

	t.Run("returns error for an invalid run id", func(t *testing.T) {
		dispatcher := pipeline.NewDispatcher(logger, newTestGuard(), new(mock.DatasetResolver))
		_, err := dispatcher.Handle(ctx, pipeline.DispatchRequest{
			RunID: "bogus",
			Scope: resource.Scope{ProjectsInclude: []string{"p1"}},
		}, "msg-1")
		assert.NotNil(t, err)
	})

	t.Run("returns error for an empty scope", func(t *testing.T) {
		dispatcher := pipeline.NewDispatcher(logger, newTestGuard(), new(mock.DatasetResolver))
		_, err := dispatcher.Handle(ctx, pipeline.DispatchRequest{RunID: testRunID}, "msg-1")
		assert.NotNil(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrInvalidArgument))
	})

	t.Run("fans out one message per resolved dataset", func(t *testing.T) {
		resolver := new(mock.DatasetResolver)
		scope := resource.Scope{
			ProjectsInclude: []string{"p1"},
			TablesExclude:   []string{"regex:_tmp$"},
		}
		resolver.On("ResolveDatasets", ctx, scope).Return([]resource.DatasetSpec{
			{Project: "p1", Dataset: "d1"},
			{Project: "p1", Dataset: "d2"},
		}, nil)

		dispatcher := pipeline.NewDispatcher(logger, newTestGuard(), resolver)
		out, err := dispatcher.Handle(ctx, pipeline.DispatchRequest{
			RunID:      testRunID,
			Scope:      scope,
			IsForceRun: true,
		}, "msg-1")
		assert.Nil(t, err)
		assert.Len(t, out, 2)
		assert.Equal(t, "p1.d1", out[0].Dataset)
		assert.Equal(t, "p1.d2", out[1].Dataset)
		assert.Equal(t, []string{"regex:_tmp$"}, out[0].TablesExclude)
		assert.True(t, out[0].IsForceRun)
		resolver.AssertExpectations(t)
	})

	t.Run("passes an explicit table list straight through", func(t *testing.T) {
		resolver := new(mock.DatasetResolver)
		dispatcher := pipeline.NewDispatcher(logger, newTestGuard(), resolver)

		out, err := dispatcher.Handle(ctx, pipeline.DispatchRequest{
			RunID: testRunID,
			Scope: resource.Scope{
				TablesInclude: []string{"p1.d1.t1", "p1.d1.t2"},
			},
		}, "msg-1")
		assert.Nil(t, err)
		assert.Len(t, out, 1)
		assert.Empty(t, out[0].Dataset)
		assert.Equal(t, []string{"p1.d1.t1", "p1.d1.t2"}, out[0].TablesInclude)
		resolver.AssertNotCalled(t, "ResolveDatasets")
	})

	t.Run("redelivery of an entry message is a hard failure", func(t *testing.T) {
		resolver := new(mock.DatasetResolver)
		resolver.On("ResolveDatasets", ctx, resource.Scope{ProjectsInclude: []string{"p1"}}).
			Return([]resource.DatasetSpec{{Project: "p1", Dataset: "d1"}}, nil)

		dispatcher := pipeline.NewDispatcher(logger, newTestGuard(), resolver)
		req := pipeline.DispatchRequest{
			RunID: testRunID,
			Scope: resource.Scope{ProjectsInclude: []string{"p1"}},
		}

		_, err := dispatcher.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)

		_, err = dispatcher.Handle(ctx, req, "msg-1")
		assert.NotNil(t, err)
		assert.True(t, errors.IsErrorType(err, errors.ErrFailedPrecond))
		assert.False(t, errors.IsRetryable(err))
	})
}

func TestDatasetDispatcher(t *testing.T) {
	ctx := context.Background()
	logger := log.NewNoop()

	t.Run("returns error when neither dataset nor tables are given", func(t *testing.T) {
		dispatcher := pipeline.NewDatasetDispatcher(logger, newTestGuard(), new(mock.TableResolver))
		_, err := dispatcher.Handle(ctx, pipeline.DatasetDispatchRequest{RunID: testRunID}, "msg-1")
		assert.NotNil(t, err)
	})

	t.Run("emits one configure message per table with distinct tracking ids", func(t *testing.T) {
		resolver := new(mock.TableResolver)
		resolver.On("ResolveTables", ctx, resource.Scope{DatasetsInclude: []string{"p1.d1"}}).
			Return([]resource.TableSpec{
				{Project: "p1", Dataset: "d1", Table: "t1"},
				{Project: "p1", Dataset: "d1", Table: "t2"},
			}, nil)

		dispatcher := pipeline.NewDatasetDispatcher(logger, newTestGuard(), resolver)
		out, err := dispatcher.Handle(ctx, pipeline.DatasetDispatchRequest{
			RunID:   testRunID,
			Dataset: "p1.d1",
		}, "msg-1")
		assert.Nil(t, err)
		assert.Len(t, out, 2)
		assert.NotEqual(t, out[0].TrackingID, out[1].TrackingID)

		for _, msg := range out {
			trackingID, err := run.TrackingIDFrom(msg.TrackingID)
			assert.Nil(t, err)
			assert.Equal(t, testRunID, trackingID.RunID().String())
		}
	})

	t.Run("resolves a pre supplied table list without a dataset", func(t *testing.T) {
		resolver := new(mock.TableResolver)
		resolver.On("ResolveTables", ctx, resource.Scope{
			TablesInclude: []string{"p1.d1.t1"},
			TablesExclude: []string{"p1.d1.t9"},
		}).Return([]resource.TableSpec{{Project: "p1", Dataset: "d1", Table: "t1"}}, nil)

		dispatcher := pipeline.NewDatasetDispatcher(logger, newTestGuard(), resolver)
		out, err := dispatcher.Handle(ctx, pipeline.DatasetDispatchRequest{
			RunID:         testRunID,
			TablesInclude: []string{"p1.d1.t1"},
			TablesExclude: []string{"p1.d1.t9"},
		}, "msg-1")
		assert.Nil(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, "p1.d1.t1", out[0].TargetTable)
	})

	t.Run("redelivery is a silent no-op", func(t *testing.T) {
		resolver := new(mock.TableResolver)
		resolver.On("ResolveTables", ctx, resource.Scope{DatasetsInclude: []string{"p1.d1"}}).
			Return([]resource.TableSpec{{Project: "p1", Dataset: "d1", Table: "t1"}}, nil).Once()

		dispatcher := pipeline.NewDatasetDispatcher(logger, newTestGuard(), resolver)
		req := pipeline.DatasetDispatchRequest{RunID: testRunID, Dataset: "p1.d1"}

		out, err := dispatcher.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.Len(t, out, 1)

		out, err = dispatcher.Handle(ctx, req, "msg-1")
		assert.Nil(t, err)
		assert.Nil(t, out)
	})
}

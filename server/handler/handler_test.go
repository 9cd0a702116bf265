package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/odpf/salt/log"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
	"gocloud.dev/blob/memblob"

	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/core/run"
	"github.com/odpf/tablevault/ext/catalog"
	"github.com/odpf/tablevault/ext/gcs"
	"github.com/odpf/tablevault/ext/pubsub"
	"github.com/odpf/tablevault/mock"
	"github.com/odpf/tablevault/server/handler"
)

// fakePublisher records outbound batches per topic and optionally fails.
type fakePublisher struct {
	published map[string][][]byte
	failAll   bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: map[string][][]byte{}}
}

func (f *fakePublisher) Publish(_ context.Context, topicName string, payloads [][]byte) pubsub.PublishResult {
	if f.failAll {
		failures := make([]pubsub.PublishFailure, len(payloads))
		for i := range payloads {
			failures[i] = pubsub.PublishFailure{Index: i, Err: assert.AnError}
		}
		return pubsub.PublishResult{Failures: failures}
	}
	f.published[topicName] = append(f.published[topicName], payloads...)
	ids := make([]string, len(payloads))
	for i := range payloads {
		ids[i] = fmt.Sprintf("%s-%d", topicName, i)
	}
	return pubsub.PublishResult{SuccessIDs: ids}
}

var testTopics = handler.Topics{
	DatasetDispatch: "dataset-dispatch",
	Configure:       "configure",
	BQSnapshot:      "bq-snapshot",
	GCSSnapshot:     "gcs-snapshot",
	Tag:             "tag",
}

type fixture struct {
	handler   *handler.Handler
	publisher *fakePublisher
	resolver  *mock.DatasetResolver
	tables    *mock.TableResolver
	pending   pipeline.PendingTagStore
}

func newFixture() *fixture {
	logger := log.NewNoop()
	bucket := memblob.OpenBucket(nil)
	guard := pipeline.NewGuard(logger, gcs.NewFlagStore(bucket, "flags"))
	lock := gcs.NewTrackingLock(bucket, "locks")
	pending := gcs.NewPendingTagStore(bucket, "pending-tags")
	blobCatalog := catalog.NewBlobCatalog(bucket, "catalog")
	publisher := newFakePublisher()
	datasetResolver := new(mock.DatasetResolver)
	tableResolver := new(mock.TableResolver)
	executor := new(mock.SnapshotExecutor)

	fallback := policy.FallbackPolicies{Default: policy.BackupPolicy{
		Cron:                   "0 13 * * *",
		Method:                 policy.MethodBigQuerySnapshot,
		Source:                 policy.SourceSystem,
		StorageProject:         "t-backup",
		StorageDataset:         "vault",
		SnapshotExpirationDays: 30,
	}}

	h := handler.NewHandler(
		logger,
		guard,
		publisher,
		testTopics,
		pipeline.NewDispatcher(logger, guard, datasetResolver),
		pipeline.NewDatasetDispatcher(logger, guard, tableResolver),
		pipeline.NewConfigurator(logger, guard, blobCatalog, fallback),
		pipeline.NewBQSnapshoter(logger, guard, executor),
		pipeline.NewGCSSnapshoter(logger, guard, executor, pending),
		pipeline.NewTagger(logger, guard, lock, blobCatalog),
		pending,
	)
	return &fixture{
		handler:   h,
		publisher: publisher,
		resolver:  datasetResolver,
		tables:    tableResolver,
		pending:   pending,
	}
}

func pushRequest(t *testing.T, path, messageID string, payload interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(payload)
	assert.Nil(t, err)

	envelope := map[string]interface{}{
		"message": map[string]interface{}{
			"data":      base64.StdEncoding.EncodeToString(raw),
			"messageId": messageID,
		},
		"subscription": "projects/t-ops/subscriptions/test",
	}
	body, err := json.Marshal(envelope)
	assert.Nil(t, err)
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
}

func TestDispatchEndpoint(t *testing.T) {
	runID := run.NewID(time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC), run.KindHeartbeat).String()

	t.Run("acks and fans out to the dataset topic", func(t *testing.T) {
		f := newFixture()
		scope := resource.Scope{ProjectsInclude: []string{"p1"}}
		f.resolver.On("ResolveDatasets", tmock.Anything, scope).Return([]resource.DatasetSpec{
			{Project: "p1", Dataset: "d1"},
			{Project: "p1", Dataset: "d2"},
		}, nil)

		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/dispatch", "msg-1", pipeline.DispatchRequest{
			RunID: runID,
			Scope: scope,
		}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.publisher.published["dataset-dispatch"], 2)

		var out pipeline.DatasetDispatchRequest
		assert.Nil(t, json.Unmarshal(f.publisher.published["dataset-dispatch"][0], &out))
		assert.Equal(t, runID, out.RunID)
		assert.Equal(t, "p1.d1", out.Dataset)
	})

	t.Run("acks a malformed payload so it never loops", func(t *testing.T) {
		f := newFixture()

		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/dispatch", "msg-1", "not a dispatch request"))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("nacks when publishing fails and accepts the redelivery", func(t *testing.T) {
		f := newFixture()
		scope := resource.Scope{ProjectsInclude: []string{"p1"}}
		f.resolver.On("ResolveDatasets", tmock.Anything, scope).Return([]resource.DatasetSpec{
			{Project: "p1", Dataset: "d1"},
		}, nil)

		f.publisher.failAll = true
		rec := httptest.NewRecorder()
		req := pipeline.DispatchRequest{RunID: runID, Scope: scope}
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/dispatch", "msg-1", req))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		// the dedup flag was withdrawn, the redelivery goes through
		f.publisher.failAll = false
		rec = httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/dispatch", "msg-1", req))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.publisher.published["dataset-dispatch"], 1)
	})

	t.Run("acks a duplicate entry delivery as a permanent failure", func(t *testing.T) {
		f := newFixture()
		scope := resource.Scope{ProjectsInclude: []string{"p1"}}
		f.resolver.On("ResolveDatasets", tmock.Anything, scope).Return([]resource.DatasetSpec{
			{Project: "p1", Dataset: "d1"},
		}, nil)

		req := pipeline.DispatchRequest{RunID: runID, Scope: scope}
		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/dispatch", "msg-1", req))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/dispatch", "msg-1", req))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.publisher.published["dataset-dispatch"], 1)
	})
}

func TestDatasetDispatchEndpoint(t *testing.T) {
	runID := run.NewID(time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC), run.KindHeartbeat).String()

	t.Run("publishes one configure message per resolved table", func(t *testing.T) {
		f := newFixture()
		f.tables.On("ResolveTables", tmock.Anything, resource.Scope{
			DatasetsInclude: []string{"p1.d1"},
		}).Return([]resource.TableSpec{
			{Project: "p1", Dataset: "d1", Table: "t1"},
			{Project: "p1", Dataset: "d1", Table: "t2"},
		}, nil)

		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/datasets", "msg-1", pipeline.DatasetDispatchRequest{
			RunID:   runID,
			Dataset: "p1.d1",
		}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.publisher.published["configure"], 2)

		var out pipeline.ConfigureRequest
		assert.Nil(t, json.Unmarshal(f.publisher.published["configure"][0], &out))
		assert.Equal(t, "p1.d1.t1", out.TargetTable)
		_, err := run.TrackingIDFrom(out.TrackingID)
		assert.Nil(t, err)
	})
}

func TestConfigureEndpoint(t *testing.T) {
	runID := run.NewID(time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC), run.KindHeartbeat).String()

	t.Run("publishes a snapshot request for a due table", func(t *testing.T) {
		f := newFixture()

		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/configure", "msg-1", pipeline.ConfigureRequest{
			RunID:       runID,
			TrackingID:  runID + "-3e7f8a32-1bc1-4c5c-9d3e-111111111111",
			TargetTable: "p1.d1.t1",
		}))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.publisher.published["bq-snapshot"], 1)
		assert.Empty(t, f.publisher.published["gcs-snapshot"])
	})
}

func TestJobCompletionEndpoint(t *testing.T) {
	runID := run.NewID(time.Date(2023, 5, 1, 13, 0, 0, 0, time.UTC), run.KindHeartbeat).String()
	trackingID := runID + "-3e7f8a32-1bc1-4c5c-9d3e-111111111111"
	jobID := trackingID + "-export"

	auditEntry := func(jobID, errorMessage string) map[string]interface{} {
		return map[string]interface{}{
			"protoPayload": map[string]interface{}{
				"serviceData": map[string]interface{}{
					"jobCompletedEvent": map[string]interface{}{
						"job": map[string]interface{}{
							"jobName": map[string]interface{}{
								"projectId": "t-ops",
								"jobId":     jobID,
							},
							"jobStatus": map[string]interface{}{
								"state": "DONE",
								"error": map[string]interface{}{"message": errorMessage},
							},
						},
					},
				},
			},
		}
	}

	t.Run("republishes the parked tag request", func(t *testing.T) {
		f := newFixture()
		parked := pipeline.TagRequest{
			RunID:          runID,
			TrackingID:     trackingID,
			TargetTable:    "p1.d1.t1",
			AppliedMethod:  policy.MethodGCSExport,
			DestinationURI: "gs://t-backup-exports/p1.d1.t1/1/*",
			OperationAt:    time.Now().UTC(),
		}
		assert.Nil(t, f.pending.Put(context.Background(), jobID, parked))

		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/jobs/completions", "msg-1", auditEntry(jobID, "")))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, f.publisher.published["tag"], 1)

		var out pipeline.TagRequest
		assert.Nil(t, json.Unmarshal(f.publisher.published["tag"][0], &out))
		assert.Equal(t, trackingID, out.TrackingID)
	})

	t.Run("ignores jobs this pipeline never submitted", func(t *testing.T) {
		f := newFixture()

		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/jobs/completions", "msg-1", auditEntry("someone-elses-job", "")))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("acks a failed export without tagging", func(t *testing.T) {
		f := newFixture()
		assert.Nil(t, f.pending.Put(context.Background(), jobID, pipeline.TagRequest{TrackingID: trackingID}))

		rec := httptest.NewRecorder()
		f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/jobs/completions", "msg-1", auditEntry(jobID, "quota exceeded")))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, f.publisher.published)
	})

	t.Run("a replayed completion does not tag twice", func(t *testing.T) {
		f := newFixture()
		assert.Nil(t, f.pending.Put(context.Background(), jobID, pipeline.TagRequest{TrackingID: trackingID}))

		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			f.handler.Router().ServeHTTP(rec, pushRequest(t, "/v1/jobs/completions", "msg-1", auditEntry(jobID, "")))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
		assert.Len(t, f.publisher.published["tag"], 1)
	})
}

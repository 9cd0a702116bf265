// Package handler exposes the pipeline stages as push endpoints. Each
// endpoint decodes the push envelope, runs its stage with the pub/sub
// message id as the delivery id, publishes the stage's outbound messages and
// translates the outcome into an ack or a nack: retryable failures answer
// 500 so the subscription redelivers, final failures are logged and answered
// 200 so a poison message never loops.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/odpf/salt/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/ext/pubsub"
	"github.com/odpf/tablevault/internal/errors"
)

const entityHandler = "handler"

// Publisher sends one batch of payloads to a named topic.
type Publisher interface {
	Publish(ctx context.Context, topicName string, payloads [][]byte) pubsub.PublishResult
}

// Topics names the destination topic of each stage's outbound messages.
type Topics struct {
	DatasetDispatch string
	Configure       string
	BQSnapshot      string
	GCSSnapshot     string
	Tag             string
}

type Handler struct {
	l         log.Logger
	guard     *pipeline.Guard
	publisher Publisher
	topics    Topics

	dispatcher        *pipeline.Dispatcher
	datasetDispatcher *pipeline.DatasetDispatcher
	configurator      *pipeline.Configurator
	bqSnapshoter      *pipeline.BQSnapshoter
	gcsSnapshoter     *pipeline.GCSSnapshoter
	tagger            *pipeline.Tagger
	pending           pipeline.PendingTagStore
}

func NewHandler(
	logger log.Logger,
	guard *pipeline.Guard,
	publisher Publisher,
	topics Topics,
	dispatcher *pipeline.Dispatcher,
	datasetDispatcher *pipeline.DatasetDispatcher,
	configurator *pipeline.Configurator,
	bqSnapshoter *pipeline.BQSnapshoter,
	gcsSnapshoter *pipeline.GCSSnapshoter,
	tagger *pipeline.Tagger,
	pending pipeline.PendingTagStore,
) *Handler {
	return &Handler{
		l:                 logger,
		guard:             guard,
		publisher:         publisher,
		topics:            topics,
		dispatcher:        dispatcher,
		datasetDispatcher: datasetDispatcher,
		configurator:      configurator,
		bqSnapshoter:      bqSnapshoter,
		gcsSnapshoter:     gcsSnapshoter,
		tagger:            tagger,
		pending:           pending,
	}
}

func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/v1/dispatch", h.dispatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/datasets", h.datasetDispatch).Methods(http.MethodPost)
	r.HandleFunc("/v1/configure", h.configure).Methods(http.MethodPost)
	r.HandleFunc("/v1/snapshot/bigquery", h.bqSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/v1/snapshot/gcs", h.gcsSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/v1/tag", h.tag).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/completions", h.jobCompletion).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// delivery accumulates the identity and payloads of one handled message for
// the single outcome record logged when the delivery finishes.
type delivery struct {
	stage      string
	deliveryID string
	runID      string
	trackingID string
	resource   string
	request    string
	response   string
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	d := delivery{stage: pipeline.StageDispatch}
	env, err := decodeEnvelope(r)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	d.deliveryID = env.Message.MessageID
	d.request = string(env.Message.Data)

	var req pipeline.DispatchRequest
	if err := json.Unmarshal(env.Message.Data, &req); err != nil {
		h.finish(w, d, errors.InvalidArgument(entityHandler, "dispatch payload is malformed: "+err.Error()))
		return
	}
	d.runID = req.RunID

	out, err := h.dispatcher.Handle(r.Context(), req, d.deliveryID)
	if err == nil && len(out) > 0 {
		d.recordResponse(out)
		payloads := make([]interface{}, len(out))
		for i, msg := range out {
			payloads[i] = msg
		}
		err = h.publishAll(r.Context(), d.stage, d.deliveryID, h.topics.DatasetDispatch, payloads)
	}
	h.finish(w, d, err)
}

func (h *Handler) datasetDispatch(w http.ResponseWriter, r *http.Request) {
	d := delivery{stage: pipeline.StageDatasetDispatch}
	env, err := decodeEnvelope(r)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	d.deliveryID = env.Message.MessageID
	d.request = string(env.Message.Data)

	var req pipeline.DatasetDispatchRequest
	if err := json.Unmarshal(env.Message.Data, &req); err != nil {
		h.finish(w, d, errors.InvalidArgument(entityHandler, "dataset dispatch payload is malformed: "+err.Error()))
		return
	}
	d.runID = req.RunID
	d.resource = req.Dataset

	out, err := h.datasetDispatcher.Handle(r.Context(), req, d.deliveryID)
	if err == nil && len(out) > 0 {
		d.recordResponse(out)
		payloads := make([]interface{}, len(out))
		for i, msg := range out {
			payloads[i] = msg
		}
		err = h.publishAll(r.Context(), d.stage, d.deliveryID, h.topics.Configure, payloads)
	}
	h.finish(w, d, err)
}

func (h *Handler) configure(w http.ResponseWriter, r *http.Request) {
	d := delivery{stage: pipeline.StageConfigure}
	env, err := decodeEnvelope(r)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	d.deliveryID = env.Message.MessageID
	d.request = string(env.Message.Data)

	var req pipeline.ConfigureRequest
	if err := json.Unmarshal(env.Message.Data, &req); err != nil {
		h.finish(w, d, errors.InvalidArgument(entityHandler, "configure payload is malformed: "+err.Error()))
		return
	}
	d.runID = req.RunID
	d.trackingID = req.TrackingID
	d.resource = req.TargetTable

	resp, err := h.configurator.Handle(r.Context(), req, d.deliveryID)
	if err == nil {
		d.recordResponse(resp)
	}
	if err == nil && resp.BigQuery != nil {
		err = h.publishAll(r.Context(), d.stage, d.deliveryID, h.topics.BQSnapshot, []interface{}{*resp.BigQuery})
	}
	if err == nil && resp.GCS != nil {
		err = h.publishAll(r.Context(), d.stage, d.deliveryID, h.topics.GCSSnapshot, []interface{}{*resp.GCS})
	}
	h.finish(w, d, err)
}

func (h *Handler) bqSnapshot(w http.ResponseWriter, r *http.Request) {
	d := delivery{stage: pipeline.StageBQSnapshot}
	env, err := decodeEnvelope(r)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	d.deliveryID = env.Message.MessageID
	d.request = string(env.Message.Data)

	var req pipeline.SnapshotRequest
	if err := json.Unmarshal(env.Message.Data, &req); err != nil {
		h.finish(w, d, errors.InvalidArgument(entityHandler, "snapshot payload is malformed: "+err.Error()))
		return
	}
	d.runID = req.RunID
	d.trackingID = req.TrackingID
	d.resource = req.TargetTable

	tagReq, err := h.bqSnapshoter.Handle(r.Context(), req, d.deliveryID)
	if err == nil && tagReq != nil {
		d.recordResponse(tagReq)
		err = h.publishAll(r.Context(), d.stage, d.deliveryID, h.topics.Tag, []interface{}{*tagReq})
	}
	h.finish(w, d, err)
}

func (h *Handler) gcsSnapshot(w http.ResponseWriter, r *http.Request) {
	d := delivery{stage: pipeline.StageGCSSnapshot}
	env, err := decodeEnvelope(r)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	d.deliveryID = env.Message.MessageID
	d.request = string(env.Message.Data)

	var req pipeline.SnapshotRequest
	if err := json.Unmarshal(env.Message.Data, &req); err != nil {
		h.finish(w, d, errors.InvalidArgument(entityHandler, "export payload is malformed: "+err.Error()))
		return
	}
	d.runID = req.RunID
	d.trackingID = req.TrackingID
	d.resource = req.TargetTable

	// a tag request comes back inline only on a dry run, otherwise it waits
	// in the pending store for the job completion notification
	tagReq, err := h.gcsSnapshoter.Handle(r.Context(), req, d.deliveryID)
	if err == nil && tagReq != nil {
		d.recordResponse(tagReq)
		err = h.publishAll(r.Context(), d.stage, d.deliveryID, h.topics.Tag, []interface{}{*tagReq})
	}
	h.finish(w, d, err)
}

func (h *Handler) tag(w http.ResponseWriter, r *http.Request) {
	d := delivery{stage: pipeline.StageTag}
	env, err := decodeEnvelope(r)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	d.deliveryID = env.Message.MessageID
	d.request = string(env.Message.Data)

	var req pipeline.TagRequest
	if err := json.Unmarshal(env.Message.Data, &req); err != nil {
		h.finish(w, d, errors.InvalidArgument(entityHandler, "tag payload is malformed: "+err.Error()))
		return
	}
	d.runID = req.RunID
	d.trackingID = req.TrackingID
	d.resource = req.TargetTable

	err = h.tagger.Handle(r.Context(), req, d.deliveryID)
	h.finish(w, d, err)
}

// publishAll marshals and publishes one stage's outbound batch. Any publish
// failure withdraws the delivery's dedup flag and reports retryable, so the
// redelivered message republishes the whole batch. Downstream dedup absorbs
// the messages that did get through the first time.
func (h *Handler) publishAll(ctx context.Context, stage, deliveryID, topic string, messages []interface{}) error {
	payloads := make([][]byte, 0, len(messages))
	for _, msg := range messages {
		raw, err := json.Marshal(msg)
		if err != nil {
			return errors.InternalError(entityHandler, "failed to encode outbound message for "+topic, err)
		}
		payloads = append(payloads, raw)
	}

	result := h.publisher.Publish(ctx, topic, payloads)
	if len(result.Failures) == 0 {
		return nil
	}
	if err := h.guard.Unmark(ctx, stage, deliveryID); err != nil {
		h.l.Error(fmt.Sprintf("withdrawing dedup flag for %s/%s failed: %s", stage, deliveryID, err.Error()))
	}
	return errors.MarkRetryable(errors.InternalError(entityHandler,
		fmt.Sprintf("%d of %d outbound messages to %s failed", len(result.Failures), len(payloads), topic),
		result.Failures[0].Err))
}

func (d *delivery) recordResponse(resp interface{}) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	d.response = string(raw)
}

// finish writes the delivery outcome. One structured record per delivery
// carries the identities, the payloads and how it ended; this record is the
// audit trail of a run.
func (h *Handler) finish(w http.ResponseWriter, d delivery, err error) {
	fields := []interface{}{
		"stage", d.stage,
		"delivery_id", d.deliveryID,
		"run_id", d.runID,
		"tracking_id", d.trackingID,
		"resource", d.resource,
		"request", d.request,
		"response", d.response,
	}
	if err == nil {
		h.l.Info("delivery done", append(fields, "success", true)...)
		w.WriteHeader(http.StatusOK)
		return
	}

	fields = append(fields, "success", false, "error", err.Error())
	if errors.IsRetryable(err) {
		h.l.Warn("delivery failed, will retry", append(fields, "retryable", true)...)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	// acked so the subscription stops redelivering a message that can never
	// succeed
	h.l.Error("delivery failed permanently", append(fields, "retryable", false)...)
	w.WriteHeader(http.StatusOK)
}

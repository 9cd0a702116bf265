package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const stageJobCompletion = "job-completion"

// jobCompletionNotification is the audit log entry the logging sink forwards
// when a load/extract/copy job reaches DONE. Only the job name and terminal
// status matter here.
type jobCompletionNotification struct {
	ProtoPayload struct {
		ServiceData struct {
			JobCompletedEvent struct {
				Job struct {
					JobName struct {
						ProjectID string `json:"projectId"`
						JobID     string `json:"jobId"`
					} `json:"jobName"`
					JobStatus struct {
						State string `json:"state"`
						Error struct {
							Message string `json:"message"`
						} `json:"error"`
					} `json:"jobStatus"`
				} `json:"job"`
			} `json:"jobCompletedEvent"`
		} `json:"serviceData"`
	} `json:"protoPayload"`
}

// jobCompletion turns an export job's completion notification into the tag
// message the export stage parked earlier. Notifications for jobs this
// pipeline never submitted are acked without effect.
func (h *Handler) jobCompletion(w http.ResponseWriter, r *http.Request) {
	d := delivery{stage: stageJobCompletion}
	env, err := decodeEnvelope(r)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	d.deliveryID = env.Message.MessageID
	d.request = string(env.Message.Data)

	var notification jobCompletionNotification
	if err := json.Unmarshal(env.Message.Data, &notification); err != nil {
		h.l.Warn(fmt.Sprintf("job completion delivery %s is not an audit log entry, ignoring", d.deliveryID))
		w.WriteHeader(http.StatusOK)
		return
	}

	job := notification.ProtoPayload.ServiceData.JobCompletedEvent.Job
	jobID := job.JobName.JobID
	if !strings.HasSuffix(jobID, "-export") {
		w.WriteHeader(http.StatusOK)
		return
	}

	// a replayed audit entry would republish the tag message under a fresh
	// pub/sub id, sidestepping the tagger's dedup, so completions carry
	// their own flag scope
	duplicate, err := h.guard.CheckAndMark(r.Context(), stageJobCompletion, d.deliveryID)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	if duplicate {
		h.l.Info(fmt.Sprintf("completion delivery %s already processed, skipping", d.deliveryID))
		w.WriteHeader(http.StatusOK)
		return
	}
	if job.JobStatus.Error.Message != "" {
		// the export never produced its files, so there is nothing to tag;
		// the record keeps its previous state and the next run tries again
		h.l.Error(fmt.Sprintf("export job %s failed: %s", jobID, job.JobStatus.Error.Message))
		w.WriteHeader(http.StatusOK)
		return
	}

	tagReq, err := h.pending.Get(r.Context(), jobID)
	if err != nil {
		h.finish(w, d, err)
		return
	}
	if tagReq == nil {
		h.l.Warn(fmt.Sprintf("export job %s has no pending tag, ignoring", jobID))
		w.WriteHeader(http.StatusOK)
		return
	}
	d.runID = tagReq.RunID
	d.trackingID = tagReq.TrackingID
	d.resource = tagReq.TargetTable
	d.recordResponse(tagReq)

	err = h.publishAll(r.Context(), stageJobCompletion, d.deliveryID, h.topics.Tag, []interface{}{*tagReq})
	h.finish(w, d, err)
}

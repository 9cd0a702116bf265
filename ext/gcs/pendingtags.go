package gcs

import (
	"context"
	"encoding/json"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/internal/errors"
)

const entityPendingTags = "pending_tags"

// PendingTagStore parks serialized tag requests keyed by export job id until
// the job-completion notification picks them up.
type PendingTagStore struct {
	bucket *blob.Bucket
	prefix string
}

func NewPendingTagStore(bucket *blob.Bucket, prefix string) *PendingTagStore {
	return &PendingTagStore{
		bucket: bucket,
		prefix: prefix,
	}
}

func (s *PendingTagStore) Put(ctx context.Context, jobID string, req pipeline.TagRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return errors.InternalError(entityPendingTags, "failed to encode pending tag for job "+jobID, err)
	}
	if err := s.bucket.WriteAll(ctx, s.path(jobID), raw, nil); err != nil {
		return errors.MarkRetryable(errors.InternalError(entityPendingTags, "failed to store pending tag for job "+jobID, err))
	}
	return nil
}

func (s *PendingTagStore) Get(ctx context.Context, jobID string) (*pipeline.TagRequest, error) {
	raw, err := s.bucket.ReadAll(ctx, s.path(jobID))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, errors.MarkRetryable(errors.InternalError(entityPendingTags, "failed to read pending tag for job "+jobID, err))
	}
	var req pipeline.TagRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, errors.InternalError(entityPendingTags, "failed to decode pending tag for job "+jobID, err)
	}
	return &req, nil
}

func (s *PendingTagStore) path(jobID string) string {
	return s.prefix + "/" + jobID + ".json"
}

package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/odpf/tablevault/internal/errors"
)

// pushEnvelope is the wrapper a push subscription delivers a message in.
// Data is base64 on the wire; json decodes it into raw bytes.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func decodeEnvelope(r *http.Request) (pushEnvelope, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return pushEnvelope{}, errors.MarkRetryable(errors.InternalError(entityHandler, "failed to read push request body", err))
	}
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return pushEnvelope{}, errors.InvalidArgument(entityHandler, "push request body is not a valid envelope: "+err.Error())
	}
	if env.Message.MessageID == "" {
		return pushEnvelope{}, errors.InvalidArgument(entityHandler, "push envelope carries no message id")
	}
	return env, nil
}

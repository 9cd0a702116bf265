package errors

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Retryabler is the hint a collaborator error type may expose about
// whether the failed call can be attempted again.
type Retryabler interface {
	Retryable() bool
}

type retryableError struct {
	wrapped error
}

func (e *retryableError) Error() string {
	return e.wrapped.Error()
}

func (e *retryableError) Unwrap() error {
	return e.wrapped
}

func (*retryableError) Retryable() bool {
	return true
}

// MarkRetryable wraps err so that IsRetryable reports true for it and for
// anything wrapping it.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{wrapped: err}
}

// retryableKinds holds sentinel errors treated as retryable when they appear
// anywhere in a cause chain.
var retryableKinds []error

// AddRetryableKind registers sentinel errors as known-retryable. Matching is
// done with errors.Is, so both exact and caused-by occurrences count.
func AddRetryableKind(errs ...error) {
	retryableKinds = append(retryableKinds, errs...)
}

// IsRetryable classifies err for redelivery. Explicit rate-limit and
// resource-exhaustion signals win, then the registered retryable kinds,
// then any Retryabler hint in the chain. Everything else is final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable:
			return true
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(interface{ GRPCStatus() *status.Status }); ok {
			switch st.GRPCStatus().Code() {
			case codes.ResourceExhausted, codes.Unavailable, codes.Aborted:
				return true
			}
		}
	}

	for _, kind := range retryableKinds {
		if errors.Is(err, kind) {
			return true
		}
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if hint, ok := e.(Retryabler); ok {
			return hint.Retryable()
		}
	}
	return false
}

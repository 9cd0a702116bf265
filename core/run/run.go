package run

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odpf/tablevault/internal/errors"
)

const (
	EntityRun = "run"

	// millis since epoch, zero padded so ids of one era sort lexically
	timestampWidth = 13
	idLength       = timestampWidth + 1
)

// Kind is the single-character run-kind suffix of a run id.
type Kind byte

const (
	KindHeartbeat Kind = 'H'
	KindForced    Kind = 'F'
	KindDryRun    Kind = 'D'
)

func kindFrom(c byte) (Kind, error) {
	switch Kind(c) {
	case KindHeartbeat, KindForced, KindDryRun:
		return Kind(c), nil
	default:
		return 0, errors.InvalidArgument(EntityRun, "unknown run kind "+string(c))
	}
}

// ID correlates every message of one pipeline invocation. It encodes the
// run's reference timestamp, so every stage of the run shares one notion of
// "now" instead of reading the wall clock.
type ID string

func NewID(at time.Time, kind Kind) ID {
	return ID(fmt.Sprintf("%0*d%c", timestampWidth, at.UnixMilli(), kind))
}

func IDFrom(raw string) (ID, error) {
	if len(raw) != idLength {
		return "", errors.InvalidArgument(EntityRun, "invalid run id "+raw)
	}
	if _, err := strconv.ParseInt(raw[:timestampWidth], 10, 64); err != nil {
		return "", errors.InvalidArgument(EntityRun, "invalid run id timestamp in "+raw)
	}
	if _, err := kindFrom(raw[timestampWidth]); err != nil {
		return "", err
	}
	return ID(raw), nil
}

func (id ID) String() string {
	return string(id)
}

// ReferenceTime is the fixed decision instant for the whole run.
func (id ID) ReferenceTime() time.Time {
	millis, _ := strconv.ParseInt(string(id)[:timestampWidth], 10, 64)
	return time.UnixMilli(millis).UTC()
}

func (id ID) Kind() Kind {
	return Kind(id[timestampWidth])
}

func (id ID) IsForced() bool {
	return id.Kind() == KindForced
}

func (id ID) IsDryRun() bool {
	return id.Kind() == KindDryRun
}

// TrackingID is unique per (run, resource) pair: runID-uuid. It is the
// idempotency and locking key for resource-level operations.
type TrackingID string

func NewTrackingID(runID ID) TrackingID {
	return TrackingID(runID.String() + "-" + uuid.NewString())
}

func TrackingIDFrom(raw string) (TrackingID, error) {
	idx := strings.Index(raw, "-")
	if idx != idLength {
		return "", errors.InvalidArgument(EntityRun, "invalid tracking id "+raw)
	}
	if _, err := IDFrom(raw[:idx]); err != nil {
		return "", err
	}
	if _, err := uuid.Parse(raw[idx+1:]); err != nil {
		return "", errors.InvalidArgument(EntityRun, "invalid tracking id suffix in "+raw)
	}
	return TrackingID(raw), nil
}

func (t TrackingID) String() string {
	return string(t)
}

func (t TrackingID) RunID() ID {
	return ID(string(t)[:idLength])
}

// Package schedule decides whether a backup is due and where in time it
// reads its source.
//
// Cron dialect: robfig ParseStandard, i.e. 5-field crontab plus descriptors
// such as @daily. Timestamps are truncated to whole minutes in UTC before
// any comparison, so second-level precision never participates in a
// decision.
package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/internal/errors"
)

const EntitySchedule = "schedule"

// NextCronTrigger returns the first instant matching expr strictly after
// lastRunAt. Deterministic for a fixed (expr, lastRunAt) pair.
func NextCronTrigger(expr string, lastRunAt time.Time) (time.Time, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, errors.InvalidArgument(EntitySchedule, "invalid cron expression "+expr)
	}
	return spec.Next(lastRunAt.UTC().Truncate(time.Minute)), nil
}

// IsDue decides whether a backup should happen now. A forced run is always
// due, as is any resource that has never been backed up, whichever config
// source its policy came from. Otherwise the policy cron is evaluated
// against the run's fixed reference time, never the wall clock.
func IsDue(forceRun bool, expr string, referenceTime time.Time, _ policy.ConfigSource, lastBackupAt time.Time) (bool, error) {
	if forceRun {
		return true, nil
	}
	if lastBackupAt.IsZero() {
		return true, nil
	}
	next, err := NextCronTrigger(expr, lastBackupAt)
	if err != nil {
		return false, err
	}
	return next.Before(referenceTime.UTC().Truncate(time.Minute)), nil
}

// maxOffsetBuffer compensates for reading exactly at the edge of the source
// system's retention window.
const maxOffsetBuffer = 60 * time.Second

// TimeTravelInstant computes the point in time a backup reads its source.
// Offset zero still goes through the snapshot mechanism (the instant is the
// operation time itself); the maximum offset backs off by a minute from the
// retention boundary.
func TimeTravelInstant(offset policy.TimeTravelOffset, operationTime time.Time) time.Time {
	if offset == 0 {
		return operationTime
	}
	instant := operationTime.Add(-time.Duration(offset.Days()) * 24 * time.Hour)
	if offset.Days() == policy.MaxTimeTravelOffsetDays {
		instant = instant.Add(maxOffsetBuffer)
	}
	return instant
}

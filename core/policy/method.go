package policy

import (
	"github.com/odpf/tablevault/internal/errors"
)

const EntityPolicy = "backup_policy"

// BackupMethod selects which backup operations a policy produces.
type BackupMethod string

const (
	MethodBigQuerySnapshot BackupMethod = "BIGQUERY_SNAPSHOT"
	MethodGCSExport        BackupMethod = "GCS_EXPORT"
	MethodBoth             BackupMethod = "BOTH"
)

func BackupMethodFrom(name string) (BackupMethod, error) {
	switch name {
	case string(MethodBigQuerySnapshot):
		return MethodBigQuerySnapshot, nil
	case string(MethodGCSExport):
		return MethodGCSExport, nil
	case string(MethodBoth):
		return MethodBoth, nil
	default:
		return "", errors.InvalidArgument(EntityPolicy, "unknown backup method "+name)
	}
}

func (m BackupMethod) String() string {
	return string(m)
}

func (m BackupMethod) IncludesBigQuerySnapshot() bool {
	return m == MethodBigQuerySnapshot || m == MethodBoth
}

func (m BackupMethod) IncludesGCSExport() bool {
	return m == MethodGCSExport || m == MethodBoth
}

// ConfigSource records where a policy came from. A MANUAL policy is a human
// override and always wins over SYSTEM fallback computation.
type ConfigSource string

const (
	SourceSystem ConfigSource = "SYSTEM"
	SourceManual ConfigSource = "MANUAL"
)

func ConfigSourceFrom(name string) (ConfigSource, error) {
	switch name {
	case string(SourceSystem):
		return SourceSystem, nil
	case string(SourceManual):
		return SourceManual, nil
	default:
		return "", errors.InvalidArgument(EntityPolicy, "unknown config source "+name)
	}
}

// MaxTimeTravelOffsetDays is the retention window of the point-in-time read
// capability of the source system.
const MaxTimeTravelOffsetDays = 7

// TimeTravelOffset is how many days in the past a backup reads its source,
// bounded by the source system's retention window.
type TimeTravelOffset int

func TimeTravelOffsetFrom(days int) (TimeTravelOffset, error) {
	if days < 0 || days > MaxTimeTravelOffsetDays {
		return 0, errors.InvalidArgument(EntityPolicy, "time travel offset out of range [0,7]")
	}
	return TimeTravelOffset(days), nil
}

func (o TimeTravelOffset) Days() int {
	return int(o)
}

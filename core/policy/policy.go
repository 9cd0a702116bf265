package policy

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/robfig/cron/v3"
)

// BackupState is the only mutable part of a policy record. It is written
// solely by the tag stage, under the per-tracking-id lock.
type BackupState struct {
	LastBackupAt      time.Time `json:"last_backup_at" mapstructure:"last_backup_at"`
	LastBQSnapshotURI string    `json:"last_bq_snapshot_storage_uri" mapstructure:"last_bq_snapshot_storage_uri"`
	LastGCSExportURI  string    `json:"last_gcs_snapshot_storage_uri" mapstructure:"last_gcs_snapshot_storage_uri"`
}

// BackupPolicy governs how, when and where one resource is backed up.
// BigQuery-destination fields are required when the method includes a
// snapshot, GCS-destination fields when it includes an export, and the
// CSV/Avro specifics when the export format implies that family.
type BackupPolicy struct {
	Cron                 string           `json:"backup_cron" mapstructure:"backup_cron"`
	Method               BackupMethod     `json:"backup_method" mapstructure:"backup_method"`
	TimeTravelOffsetDays TimeTravelOffset `json:"backup_time_travel_offset_days" mapstructure:"backup_time_travel_offset_days"`
	Source               ConfigSource     `json:"config_source" mapstructure:"config_source"`

	StorageProject         string  `json:"backup_storage_project" mapstructure:"backup_storage_project"`
	StorageDataset         string  `json:"backup_storage_dataset" mapstructure:"backup_storage_dataset"`
	SnapshotExpirationDays float64 `json:"bq_snapshot_expiration_days" mapstructure:"bq_snapshot_expiration_days"`

	GCSStorageLocation  string       `json:"gcs_snapshot_storage_location" mapstructure:"gcs_snapshot_storage_location"`
	GCSExportFormat     ExportFormat `json:"gcs_snapshot_format" mapstructure:"gcs_snapshot_format"`
	CSVFieldDelimiter   string       `json:"gcs_csv_delimiter,omitempty" mapstructure:"gcs_csv_delimiter"`
	CSVExportHeader     *bool        `json:"gcs_csv_export_header,omitempty" mapstructure:"gcs_csv_export_header"`
	AvroUseLogicalTypes *bool        `json:"gcs_avro_use_logical_types,omitempty" mapstructure:"gcs_avro_use_logical_types"`

	State BackupState `json:"state" mapstructure:"state"`
}

// Validate reports every violation at once, not just the first, so a caller
// sees the complete set of gaps for the policy's method/format combination.
func (p BackupPolicy) Validate() error {
	var violations error

	if p.Cron == "" {
		violations = multierror.Append(violations, fmt.Errorf("backup_cron is required"))
	} else if _, err := cron.ParseStandard(p.Cron); err != nil {
		violations = multierror.Append(violations, fmt.Errorf("backup_cron %q is not a valid cron expression: %w", p.Cron, err))
	}

	if _, err := BackupMethodFrom(string(p.Method)); err != nil {
		violations = multierror.Append(violations, fmt.Errorf("backup_method %q is not one of BIGQUERY_SNAPSHOT, GCS_EXPORT, BOTH", p.Method))
	}
	if _, err := TimeTravelOffsetFrom(p.TimeTravelOffsetDays.Days()); err != nil {
		violations = multierror.Append(violations, fmt.Errorf("backup_time_travel_offset_days %d is out of range [0,%d]", p.TimeTravelOffsetDays.Days(), MaxTimeTravelOffsetDays))
	}
	if _, err := ConfigSourceFrom(string(p.Source)); err != nil {
		violations = multierror.Append(violations, fmt.Errorf("config_source %q is not one of SYSTEM, MANUAL", p.Source))
	}

	if p.Method.IncludesBigQuerySnapshot() {
		if p.StorageProject == "" {
			violations = multierror.Append(violations, fmt.Errorf("backup_storage_project is required for method %s", p.Method))
		}
		if p.StorageDataset == "" {
			violations = multierror.Append(violations, fmt.Errorf("backup_storage_dataset is required for method %s", p.Method))
		}
		if p.SnapshotExpirationDays <= 0 {
			violations = multierror.Append(violations, fmt.Errorf("bq_snapshot_expiration_days must be positive for method %s", p.Method))
		}
	}

	if p.Method.IncludesGCSExport() {
		if p.GCSStorageLocation == "" {
			violations = multierror.Append(violations, fmt.Errorf("gcs_snapshot_storage_location is required for method %s", p.Method))
		}
		if !p.GCSExportFormat.IsValid() {
			violations = multierror.Append(violations, fmt.Errorf("gcs_snapshot_format %q is not a known export format", p.GCSExportFormat))
		} else {
			if p.GCSExportFormat.IsCSV() {
				if p.CSVFieldDelimiter == "" {
					violations = multierror.Append(violations, fmt.Errorf("gcs_csv_delimiter is required for format %s", p.GCSExportFormat))
				}
				if p.CSVExportHeader == nil {
					violations = multierror.Append(violations, fmt.Errorf("gcs_csv_export_header is required for format %s", p.GCSExportFormat))
				}
			}
			if p.GCSExportFormat.IsAvro() && p.AvroUseLogicalTypes == nil {
				violations = multierror.Append(violations, fmt.Errorf("gcs_avro_use_logical_types is required for format %s", p.GCSExportFormat))
			}
		}
	}

	return violations
}

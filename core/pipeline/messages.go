package pipeline

import (
	"time"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
)

// DispatchRequest triggers a whole run over a scope.
type DispatchRequest struct {
	RunID      string         `json:"run_id"`
	Scope      resource.Scope `json:"scope"`
	IsForceRun bool           `json:"is_force_run"`
	IsDryRun   bool           `json:"is_dry_run"`
}

// DatasetDispatchRequest asks for the tables of one dataset to be resolved.
// When the triggering scope already enumerated exact tables, TablesInclude
// carries them and Dataset is empty.
type DatasetDispatchRequest struct {
	RunID         string   `json:"run_id"`
	Dataset       string   `json:"dataset,omitempty"`
	TablesInclude []string `json:"tables_include,omitempty"`
	TablesExclude []string `json:"tables_exclude,omitempty"`
	IsForceRun    bool     `json:"is_force_run"`
	IsDryRun      bool     `json:"is_dry_run"`
}

// ConfigureRequest asks for the policy and due decision of one table.
type ConfigureRequest struct {
	RunID       string `json:"run_id"`
	TrackingID  string `json:"tracking_id"`
	TargetTable string `json:"target_table"`
	IsForceRun  bool   `json:"is_force_run"`
	IsDryRun    bool   `json:"is_dry_run"`
}

// SnapshotRequest carries the fully resolved policy so executor stages never
// re-resolve it. The same schema serves both executor variants; the topic it
// is published on selects the method.
type SnapshotRequest struct {
	RunID       string              `json:"run_id"`
	TrackingID  string              `json:"tracking_id"`
	TargetTable string              `json:"target_table"`
	Policy      policy.BackupPolicy `json:"backup_policy"`
	IsForceRun  bool                `json:"is_force_run"`
	IsDryRun    bool                `json:"is_dry_run"`
}

// TagRequest carries one operation outcome back onto the policy record.
type TagRequest struct {
	RunID          string              `json:"run_id"`
	TrackingID     string              `json:"tracking_id"`
	TargetTable    string              `json:"target_table"`
	Policy         policy.BackupPolicy `json:"backup_policy"`
	AppliedMethod  policy.BackupMethod `json:"applied_method"`
	DestinationURI string              `json:"destination_uri"`
	OperationAt    time.Time           `json:"operation_at"`
	IsDryRun       bool                `json:"is_dry_run"`
}

// ConfigureResponse is the configurator's outcome: zero, one or two
// snapshot requests depending on the due decision and the policy method.
type ConfigureResponse struct {
	Due      bool
	Policy   policy.BackupPolicy
	BigQuery *SnapshotRequest
	GCS      *SnapshotRequest
}

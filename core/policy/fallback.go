package policy

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/odpf/tablevault/core/resource"
)

// FallbackPolicies is the hierarchical default configuration, loaded once at
// process start and immutable thereafter. Maps are keyed by the dotted-string
// form of the respective level.
//
// Folders is parsed so existing documents keep loading, but resolution does
// not consult it yet.
// TODO: fold folder overrides into the precedence chain once folder ids are
// carried on resolved resources.
type FallbackPolicies struct {
	Default  BackupPolicy
	Folders  map[string]BackupPolicy
	Projects map[string]BackupPolicy
	Datasets map[string]BackupPolicy
	Tables   map[string]BackupPolicy
}

// Validate checks the default policy and every override, reporting all
// violations across the whole document at once.
func (f FallbackPolicies) Validate() error {
	var violations error
	if err := f.Default.Validate(); err != nil {
		violations = multierror.Append(violations, fmt.Errorf("default_policy: %w", err))
	}
	for section, overrides := range map[string]map[string]BackupPolicy{
		"folder_overrides":  f.Folders,
		"project_overrides": f.Projects,
		"dataset_overrides": f.Datasets,
		"table_overrides":   f.Tables,
	} {
		for key, override := range overrides {
			if err := override.Validate(); err != nil {
				violations = multierror.Append(violations, fmt.Errorf("%s[%s]: %w", section, key, err))
			}
		}
	}
	return violations
}

// forTable returns the most specific fallback for the table: exact table key,
// then dataset, then project, then the global default.
func (f FallbackPolicies) forTable(target resource.TableSpec) BackupPolicy {
	if p, ok := f.Tables[target.FullName()]; ok {
		return p
	}
	if p, ok := f.Datasets[target.DatasetSpec().FullName()]; ok {
		return p
	}
	if p, ok := f.Projects[target.Project]; ok {
		return p
	}
	return f.Default
}

package policy

import (
	"github.com/odpf/tablevault/core/resource"
)

// Resolve computes the effective policy for a table. It is deterministic and
// does no I/O; the attached policy and the fallback structure are supplied by
// the caller.
//
// A MANUAL attached policy is returned unchanged. A SYSTEM attached policy
// exists only to carry the last-backup state forward: its content is replaced
// by the current fallback so config changes take effect without re-tagging
// every resource. No attached policy means a first run, plain fallback.
func Resolve(target resource.TableSpec, attached *BackupPolicy, fallback FallbackPolicies) BackupPolicy {
	if attached != nil && attached.Source == SourceManual {
		return *attached
	}

	resolved := fallback.forTable(target)
	resolved.Source = SourceSystem
	if attached != nil {
		resolved.State = attached.State
	}
	return resolved
}

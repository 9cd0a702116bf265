package config

import (
	"encoding/json"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/internal/errors"
)

// fallbackDocument mirrors the on-disk layout of the fallback policy file.
// Policies are kept as raw maps so unknown keys surface as decode errors
// instead of silently dropping.
type fallbackDocument struct {
	Default  map[string]interface{}            `json:"default_policy"`
	Folders  map[string]map[string]interface{} `json:"folder_overrides"`
	Projects map[string]map[string]interface{} `json:"project_overrides"`
	Datasets map[string]map[string]interface{} `json:"dataset_overrides"`
	Tables   map[string]map[string]interface{} `json:"table_overrides"`
}

// LoadFallbackPolicies reads and validates the fallback policy document.
// Every policy in it is system-sourced by definition. The whole document is
// validated up front; the process must not start with a half-broken default
// chain.
func LoadFallbackPolicies(fs afero.Fs, path string) (policy.FallbackPolicies, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return policy.FallbackPolicies{}, errors.InternalError(entityConfig, "failed to read fallback policy document "+path, err)
	}

	var doc fallbackDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return policy.FallbackPolicies{}, errors.InvalidArgument(entityConfig, "fallback policy document "+path+" is not valid json: "+err.Error())
	}

	out := policy.FallbackPolicies{}
	if doc.Default == nil {
		return policy.FallbackPolicies{}, errors.InvalidArgument(entityConfig, "fallback policy document has no default_policy")
	}
	if out.Default, err = decodePolicy(doc.Default); err != nil {
		return policy.FallbackPolicies{}, err
	}
	if out.Folders, err = decodeOverrides(doc.Folders); err != nil {
		return policy.FallbackPolicies{}, err
	}
	if out.Projects, err = decodeOverrides(doc.Projects); err != nil {
		return policy.FallbackPolicies{}, err
	}
	if out.Datasets, err = decodeOverrides(doc.Datasets); err != nil {
		return policy.FallbackPolicies{}, err
	}
	if out.Tables, err = decodeOverrides(doc.Tables); err != nil {
		return policy.FallbackPolicies{}, err
	}

	if err := out.Validate(); err != nil {
		return policy.FallbackPolicies{}, errors.InvalidArgument(entityConfig, "fallback policy document is invalid: "+err.Error())
	}
	return out, nil
}

func decodeOverrides(section map[string]map[string]interface{}) (map[string]policy.BackupPolicy, error) {
	if section == nil {
		return nil, nil
	}
	out := make(map[string]policy.BackupPolicy, len(section))
	for key, fields := range section {
		p, err := decodePolicy(fields)
		if err != nil {
			return nil, err
		}
		out[key] = p
	}
	return out, nil
}

func decodePolicy(fields map[string]interface{}) (policy.BackupPolicy, error) {
	var p policy.BackupPolicy
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &p,
		// json numbers arrive as float64, offsets are ints
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return policy.BackupPolicy{}, errors.InternalError(entityConfig, "failed to build policy decoder", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return policy.BackupPolicy{}, errors.InvalidArgument(entityConfig, "fallback policy entry is malformed: "+err.Error())
	}
	p.Source = policy.SourceSystem
	return p, nil
}

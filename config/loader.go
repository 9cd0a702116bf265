package config

import (
	"fmt"
	"strings"

	saltConfig "github.com/odpf/salt/config"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/odpf/tablevault/internal/errors"
)

const (
	ErrFailedToRead      = "unable to read tablevault config file %v (%s)"
	DefaultFilename      = "tablevault"
	DefaultFileExtension = "yaml"
	DefaultEnvPrefix     = "TABLEVAULT"

	entityConfig = "config"
)

// LoadServerConfig reads the application config from dirPath, overridable
// through TABLEVAULT_* environment variables.
func LoadServerConfig(dirPath string) (*TableVault, error) {
	fs := afero.NewReadOnlyFs(afero.NewOsFs())

	cfg := Defaults()
	if err := loadConfig(&cfg, fs, dirPath); err != nil {
		return nil, fmt.Errorf(ErrFailedToRead, dirPath, err)
	}
	if err := validateServerConfig(cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadConfig(cfg interface{}, fs afero.Fs, dirPath string) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetFs(fs)

	opts := []saltConfig.LoaderOption{
		saltConfig.WithViper(v),
		saltConfig.WithName(DefaultFilename),
		saltConfig.WithType(DefaultFileExtension),
		saltConfig.WithEnvPrefix(DefaultEnvPrefix),
		saltConfig.WithEnvKeyReplacer(".", "_"),
		saltConfig.WithPath(dirPath),
	}

	l := saltConfig.NewLoader(opts...)
	return l.Load(cfg)
}

// validateServerConfig fails process startup on gaps an operator must fix;
// there is no sane default for any of these.
func validateServerConfig(cfg TableVault) error {
	var missing []string
	if cfg.Project == "" {
		missing = append(missing, "project")
	}
	if cfg.Store.BucketURL == "" {
		missing = append(missing, "store.bucket_url")
	}
	if cfg.Policies.Path == "" {
		missing = append(missing, "policies.path")
	}
	for field, value := range map[string]string{
		"transport.dispatch_topic":         cfg.Transport.DispatchTopic,
		"transport.dataset_dispatch_topic": cfg.Transport.DatasetDispatchTopic,
		"transport.configure_topic":        cfg.Transport.ConfigureTopic,
		"transport.bq_snapshot_topic":      cfg.Transport.BQSnapshotTopic,
		"transport.gcs_snapshot_topic":     cfg.Transport.GCSSnapshotTopic,
		"transport.tag_topic":              cfg.Transport.TagTopic,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return errors.InvalidArgument(entityConfig, "missing required config fields: "+strings.Join(missing, ", "))
	}
	return nil
}

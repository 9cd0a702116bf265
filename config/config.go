package config

type TableVault struct {
	// configuration version
	Version int `yaml:"version" koanf:"version"`

	// project hosting the pipeline's control resources (topics, jobs)
	Project string `yaml:"project" koanf:"project"`

	Log       LogConfig       `yaml:"log" koanf:"log"`
	Serve     ServerConfig    `yaml:"serve" koanf:"serve"`
	Transport TransportConfig `yaml:"transport" koanf:"transport"`
	Store     StoreConfig     `yaml:"store" koanf:"store"`
	Policies  PolicyConfig    `yaml:"policies" koanf:"policies"`
}

type LogConfig struct {
	// log level - debug, info, warning, error, fatal
	Level string `yaml:"level" koanf:"level"`

	// format strategy - plain, json
	Format string `yaml:"format" koanf:"format"`
}

type ServerConfig struct {
	// port to listen on
	Port int `yaml:"port" koanf:"port"`
	// the network interface to listen on
	Host string `yaml:"host" koanf:"host"`
}

// TransportConfig names the topic behind each stage.
type TransportConfig struct {
	DispatchTopic        string `yaml:"dispatch_topic" koanf:"dispatch_topic"`
	DatasetDispatchTopic string `yaml:"dataset_dispatch_topic" koanf:"dataset_dispatch_topic"`
	ConfigureTopic       string `yaml:"configure_topic" koanf:"configure_topic"`
	BQSnapshotTopic      string `yaml:"bq_snapshot_topic" koanf:"bq_snapshot_topic"`
	GCSSnapshotTopic     string `yaml:"gcs_snapshot_topic" koanf:"gcs_snapshot_topic"`
	TagTopic             string `yaml:"tag_topic" koanf:"tag_topic"`
}

// StoreConfig locates the bucket carrying flags, locks, pending tags and the
// policy catalog. BucketURL is a gocloud url, e.g. gs://tablevault-state or
// mem:// in tests.
type StoreConfig struct {
	BucketURL        string `yaml:"bucket_url" koanf:"bucket_url"`
	FlagPrefix       string `yaml:"flag_prefix" koanf:"flag_prefix"`
	LockPrefix       string `yaml:"lock_prefix" koanf:"lock_prefix"`
	PendingTagPrefix string `yaml:"pending_tag_prefix" koanf:"pending_tag_prefix"`
	CatalogPrefix    string `yaml:"catalog_prefix" koanf:"catalog_prefix"`
}

// PolicyConfig points at the fallback policy document.
type PolicyConfig struct {
	// path to the json document with default_policy and the override
	// sections
	Path string `yaml:"path" koanf:"path"`
}

func Defaults() TableVault {
	return TableVault{
		Version: 1,
		Log:     LogConfig{Level: "info", Format: "json"},
		Serve:   ServerConfig{Port: 8080, Host: "0.0.0.0"},
		Store: StoreConfig{
			FlagPrefix:       "flags",
			LockPrefix:       "locks",
			PendingTagPrefix: "pending-tags",
			CatalogPrefix:    "catalog",
		},
	}
}

package resource

import (
	"strconv"
	"strings"
	"time"

	"github.com/odpf/tablevault/internal/errors"
)

const (
	EntityResource = "resource"

	nameSectionSeparator = "."
	urnScheme            = "bigquery://"
)

// DatasetSpec addresses a dataset inside a project.
type DatasetSpec struct {
	Project string `json:"project"`
	Dataset string `json:"dataset"`
}

func DatasetSpecFrom(project, dataset string) (DatasetSpec, error) {
	if project == "" {
		return DatasetSpec{}, errors.InvalidArgument(EntityResource, "project name is empty")
	}
	if dataset == "" {
		return DatasetSpec{}, errors.InvalidArgument(EntityResource, "dataset name is empty")
	}
	return DatasetSpec{Project: project, Dataset: dataset}, nil
}

// ParseDatasetSpec parses the dotted form "project.dataset".
func ParseDatasetSpec(name string) (DatasetSpec, error) {
	sections := strings.Split(name, nameSectionSeparator)
	if len(sections) != 2 { //nolint:gomnd
		return DatasetSpec{}, errors.InvalidArgument(EntityResource, "invalid dataset name: "+name)
	}
	return DatasetSpecFrom(sections[0], sections[1])
}

func (d DatasetSpec) FullName() string {
	return d.Project + nameSectionSeparator + d.Dataset
}

// URN formats the name as bigquery://project:dataset
func (d DatasetSpec) URN() string {
	return urnScheme + d.Project + ":" + d.Dataset
}

// TableSpec addresses a single table.
type TableSpec struct {
	Project string `json:"project"`
	Dataset string `json:"dataset"`
	Table   string `json:"table"`
}

func TableSpecFrom(project, dataset, table string) (TableSpec, error) {
	if project == "" {
		return TableSpec{}, errors.InvalidArgument(EntityResource, "project name is empty")
	}
	if dataset == "" {
		return TableSpec{}, errors.InvalidArgument(EntityResource, "dataset name is empty")
	}
	if table == "" {
		return TableSpec{}, errors.InvalidArgument(EntityResource, "table name is empty")
	}
	return TableSpec{Project: project, Dataset: dataset, Table: table}, nil
}

// ParseTableSpec parses the dotted form "project.dataset.table".
func ParseTableSpec(name string) (TableSpec, error) {
	sections := strings.Split(name, nameSectionSeparator)
	if len(sections) != 3 { //nolint:gomnd
		return TableSpec{}, errors.InvalidArgument(EntityResource, "invalid table name: "+name)
	}
	return TableSpecFrom(sections[0], sections[1], sections[2])
}

// ParseTableURL parses the cloud resource url form, accepting any url whose
// path ends with projects/<p>/datasets/<d>/tables/<t>.
func ParseTableURL(resourceURL string) (TableSpec, error) {
	parts := strings.Split(strings.Trim(resourceURL, "/"), "/")
	var project, dataset, table string
	for i, part := range parts {
		if i+1 >= len(parts) {
			break
		}
		switch part {
		case "projects":
			project = parts[i+1]
		case "datasets":
			dataset = parts[i+1]
		case "tables":
			table = parts[i+1]
		}
	}
	if project == "" || dataset == "" || table == "" {
		return TableSpec{}, errors.InvalidArgument(EntityResource, "invalid table url: "+resourceURL)
	}
	return TableSpecFrom(project, dataset, table)
}

func (t TableSpec) FullName() string {
	return t.Project + nameSectionSeparator + t.Dataset + nameSectionSeparator + t.Table
}

// URN formats the name as bigquery://project:dataset.table
func (t TableSpec) URN() string {
	return urnScheme + t.Project + ":" + t.Dataset + nameSectionSeparator + t.Table
}

// URL formats the api resource url for the table.
func (t TableSpec) URL() string {
	return "https://bigquery.googleapis.com/bigquery/v2/projects/" + t.Project +
		"/datasets/" + t.Dataset + "/tables/" + t.Table
}

func (t TableSpec) DatasetSpec() DatasetSpec {
	return DatasetSpec{Project: t.Project, Dataset: t.Dataset}
}

// AtTime decorates the table name for a point-in-time read, table@epochMillis.
func (t TableSpec) AtTime(instant time.Time) string {
	return t.Table + "@" + strconv.FormatInt(instant.UnixMilli(), 10)
}

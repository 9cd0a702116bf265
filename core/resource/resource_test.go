package resource_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odpf/tablevault/core/resource"
)

func TestDatasetSpec(t *testing.T) {
	t.Run("returns error when project name is empty", func(t *testing.T) {
		_, err := resource.DatasetSpecFrom("", "playground")
		assert.NotNil(t, err)
		assert.EqualError(t, err, "invalid argument for entity resource: project name is empty")
	})
	t.Run("returns error when dataset name is empty", func(t *testing.T) {
		_, err := resource.DatasetSpecFrom("t-data", "")
		assert.NotNil(t, err)
		assert.EqualError(t, err, "invalid argument for entity resource: dataset name is empty")
	})
	t.Run("parses the dotted form", func(t *testing.T) {
		spec, err := resource.ParseDatasetSpec("t-data.playground")
		assert.Nil(t, err)
		assert.Equal(t, "t-data", spec.Project)
		assert.Equal(t, "playground", spec.Dataset)
		assert.Equal(t, "t-data.playground", spec.FullName())
		assert.Equal(t, "bigquery://t-data:playground", spec.URN())
	})
	t.Run("returns error when the dotted form has wrong arity", func(t *testing.T) {
		_, err := resource.ParseDatasetSpec("t-data.playground.characters")
		assert.NotNil(t, err)
	})
}

func TestTableSpec(t *testing.T) {
	t.Run("parses the dotted form", func(t *testing.T) {
		spec, err := resource.ParseTableSpec("t-data.playground.characters")
		assert.Nil(t, err)
		assert.Equal(t, "t-data", spec.Project)
		assert.Equal(t, "playground", spec.Dataset)
		assert.Equal(t, "characters", spec.Table)
	})
	t.Run("returns error when a section is missing", func(t *testing.T) {
		_, err := resource.ParseTableSpec("t-data.playground")
		assert.NotNil(t, err)

		_, err = resource.ParseTableSpec("t-data..characters")
		assert.NotNil(t, err)
	})
	t.Run("formats name variants", func(t *testing.T) {
		spec, err := resource.TableSpecFrom("t-data", "playground", "characters")
		assert.Nil(t, err)
		assert.Equal(t, "t-data.playground.characters", spec.FullName())
		assert.Equal(t, "bigquery://t-data:playground.characters", spec.URN())
		assert.Equal(t, "https://bigquery.googleapis.com/bigquery/v2/projects/t-data/datasets/playground/tables/characters", spec.URL())
		assert.Equal(t, resource.DatasetSpec{Project: "t-data", Dataset: "playground"}, spec.DatasetSpec())
	})
	t.Run("parses the resource url form", func(t *testing.T) {
		spec, err := resource.ParseTableURL("https://bigquery.googleapis.com/bigquery/v2/projects/t-data/datasets/playground/tables/characters")
		assert.Nil(t, err)
		assert.Equal(t, "t-data.playground.characters", spec.FullName())
	})
	t.Run("returns error when the url misses a segment", func(t *testing.T) {
		_, err := resource.ParseTableURL("https://bigquery.googleapis.com/bigquery/v2/projects/t-data/datasets/playground")
		assert.NotNil(t, err)
	})
	t.Run("decorates the table name for a point in time read", func(t *testing.T) {
		spec, err := resource.TableSpecFrom("t-data", "playground", "characters")
		assert.Nil(t, err)

		instant := time.Date(2023, 1, 2, 15, 4, 5, 0, time.UTC)
		assert.Equal(t, "characters@1672671845000", spec.AtTime(instant))
	})
}

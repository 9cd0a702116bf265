package bigquery

import (
	"context"

	"cloud.google.com/go/bigquery"
	"github.com/googleapis/google-cloud-go-testing/bigquery/bqiface"
	"github.com/odpf/salt/log"
	"google.golang.org/api/iterator"

	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/internal/errors"
)

const store = "bigquery"

// Client adapts the BigQuery api to the listing and executor contracts of
// the pipeline. Listing and copy jobs go through bqiface so tests can swap
// the client; extract jobs need config fields the testing shim does not
// expose and use the raw client underneath.
type Client struct {
	l   log.Logger
	bq  bqiface.Client
	raw *bigquery.Client
}

func NewClient(ctx context.Context, logger log.Logger, projectID string) (*Client, error) {
	raw, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.InternalError(store, "failed to create bigquery client", err)
	}
	return &Client{
		l:   logger,
		bq:  bqiface.AdaptClient(raw),
		raw: raw,
	}, nil
}

// NewClientWith wires a prepared bqiface client, used by tests.
func NewClientWith(logger log.Logger, bq bqiface.Client) *Client {
	return &Client{
		l:  logger,
		bq: bq,
	}
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *Client) ListDatasets(ctx context.Context, projectID string) ([]string, error) {
	var names []string
	it := c.bq.DatasetsInProject(ctx, projectID)
	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.InternalError(store, "failed to list datasets in "+projectID, err)
		}
		names = append(names, ds.DatasetID())
	}
	return names, nil
}

func (c *Client) ListTables(ctx context.Context, dataset resource.DatasetSpec) ([]string, error) {
	var names []string
	it := c.bq.DatasetInProject(dataset.Project, dataset.Dataset).Tables(ctx)
	for {
		table, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.InternalError(store, "failed to list tables in "+dataset.FullName(), err)
		}
		names = append(names, table.TableID())
	}
	return names, nil
}

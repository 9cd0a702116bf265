package bigquery

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"

	"github.com/odpf/tablevault/core/policy"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/internal/errors"
)

// CreateSnapshot copies the source table, read at the time-travel instant
// through the table@epochMillis decorator, into the destination and stamps
// an expiry on it. It blocks until the copy job reaches a terminal state.
// The job id is supplied by the caller, so a rerun of the same tracking id
// collides server-side instead of producing a second copy.
func (c *Client) CreateSnapshot(ctx context.Context, jobID string, source resource.TableSpec, sourceInstant time.Time,
	destination resource.TableSpec, expiry time.Time,
) error {
	src := c.bq.DatasetInProject(source.Project, source.Dataset).Table(source.AtTime(sourceInstant))
	dst := c.bq.DatasetInProject(destination.Project, destination.Dataset).Table(destination.Table)

	copier := dst.CopierFrom(src)
	copier.JobIDConfig().JobID = jobID

	job, err := copier.Run(ctx)
	if err != nil {
		return errors.InternalError(store, "failed to start snapshot copy "+jobID, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return errors.InternalError(store, "failed waiting for snapshot copy "+jobID, err)
	}
	if err := status.Err(); err != nil {
		return errors.InternalError(store, "snapshot copy "+jobID+" failed", err)
	}

	if _, err := dst.Update(ctx, bigquery.TableMetadataToUpdate{ExpirationTime: expiry}, ""); err != nil {
		return errors.InternalError(store, "failed to set expiry on "+destination.FullName(), err)
	}
	return nil
}

// SubmitExport starts an extract job of the source, read at the time-travel
// instant, to the destination uri. It returns as soon as the job is
// accepted; completion arrives through the job notification path.
func (c *Client) SubmitExport(ctx context.Context, jobID string, source resource.TableSpec, sourceInstant time.Time,
	destinationURI string, p policy.BackupPolicy, labels map[string]string,
) error {
	wire := p.GCSExportFormat.Wire()
	gcsRef := bigquery.NewGCSReference(destinationURI)
	gcsRef.DestinationFormat = bigquery.DataFormat(wire.Format)
	gcsRef.Compression = bigquery.Compression(wire.Compression)
	if p.GCSExportFormat.IsCSV() {
		gcsRef.FieldDelimiter = p.CSVFieldDelimiter
	}

	extractor := c.raw.DatasetInProject(source.Project, source.Dataset).Table(source.AtTime(sourceInstant)).ExtractorTo(gcsRef)
	extractor.JobID = jobID
	extractor.Labels = labels
	if p.GCSExportFormat.IsCSV() && p.CSVExportHeader != nil {
		extractor.DisableHeader = !*p.CSVExportHeader
	}
	if p.GCSExportFormat.IsAvro() && p.AvroUseLogicalTypes != nil {
		extractor.UseAvroLogicalTypes = *p.AvroUseLogicalTypes
	}

	if _, err := extractor.Run(ctx); err != nil {
		return errors.InternalError(store, "failed to submit export job "+jobID, err)
	}
	return nil
}

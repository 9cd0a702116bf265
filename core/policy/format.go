package policy

import (
	"github.com/odpf/tablevault/internal/errors"
)

// ExportFormat is the GCS export file format plus its compression variant.
// The set is closed: ExportFormatFrom only admits members of wireFormats, so
// a constructed format always has a wire mapping.
type ExportFormat string

const (
	FormatCSV           ExportFormat = "CSV"
	FormatCSVGzip       ExportFormat = "CSV_GZIP"
	FormatJSON          ExportFormat = "JSON"
	FormatJSONGzip      ExportFormat = "JSON_GZIP"
	FormatAvro          ExportFormat = "AVRO"
	FormatAvroDeflate   ExportFormat = "AVRO_DEFLATE"
	FormatAvroSnappy    ExportFormat = "AVRO_SNAPPY"
	FormatParquet       ExportFormat = "PARQUET"
	FormatParquetSnappy ExportFormat = "PARQUET_SNAPPY"
	FormatParquetGzip   ExportFormat = "PARQUET_GZIP"
)

// WireFormat is what the storage engine's export api expects.
type WireFormat struct {
	Format      string
	Compression string
}

var wireFormats = map[ExportFormat]WireFormat{
	FormatCSV:           {Format: "CSV", Compression: "NONE"},
	FormatCSVGzip:       {Format: "CSV", Compression: "GZIP"},
	FormatJSON:          {Format: "NEWLINE_DELIMITED_JSON", Compression: "NONE"},
	FormatJSONGzip:      {Format: "NEWLINE_DELIMITED_JSON", Compression: "GZIP"},
	FormatAvro:          {Format: "AVRO", Compression: "NONE"},
	FormatAvroDeflate:   {Format: "AVRO", Compression: "DEFLATE"},
	FormatAvroSnappy:    {Format: "AVRO", Compression: "SNAPPY"},
	FormatParquet:       {Format: "PARQUET", Compression: "NONE"},
	FormatParquetSnappy: {Format: "PARQUET", Compression: "SNAPPY"},
	FormatParquetGzip:   {Format: "PARQUET", Compression: "GZIP"},
}

func ExportFormatFrom(name string) (ExportFormat, error) {
	if _, ok := wireFormats[ExportFormat(name)]; !ok {
		return "", errors.InvalidArgument(EntityPolicy, "unknown export format "+name)
	}
	return ExportFormat(name), nil
}

func (f ExportFormat) String() string {
	return string(f)
}

func (f ExportFormat) IsValid() bool {
	_, ok := wireFormats[f]
	return ok
}

func (f ExportFormat) Wire() WireFormat {
	return wireFormats[f]
}

func (f ExportFormat) IsCSV() bool {
	return f == FormatCSV || f == FormatCSVGzip
}

func (f ExportFormat) IsAvro() bool {
	return f == FormatAvro || f == FormatAvroDeflate || f == FormatAvroSnappy
}

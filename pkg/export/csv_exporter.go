package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is a header-ordered table handed to the exporters. Rows index
// cell values by header name; a missing cell renders empty.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders a dataset as CSV, one record per row in header order.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the header line followed by every row.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("dataset has no headers")
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write header line: %w", err)
	}
	record := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

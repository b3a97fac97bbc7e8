package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"
)

// Exporter menulis ekspor CSV untuk jejak audit.
type Exporter struct{}

// NewExporter membuat exporter baru.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCSV serializes entries for compliance reporting.
func (e *Exporter) WriteCSV(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"id", "at", "principal", "roles", "attribute", "subject_type", "subject_id", "outcome", "reason"}); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, entry := range entries {
		row := []string{
			entry.ID.String(),
			entry.At.UTC().Format(time.RFC3339),
			entry.PrincipalID,
			strings.Join(entry.Roles, "|"),
			entry.Attribute,
			entry.SubjectType,
			entry.SubjectID,
			string(entry.Outcome),
			entry.Reason,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("audit: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

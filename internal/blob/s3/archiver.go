package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/halcyonlabs/oraclebridge/internal/domain"
)

// CycleReport summarizes one scan cycle for offline inspection: what was
// found, what resolved, and what made it on chain.
type CycleReport struct {
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Requests   int                 `json:"requests"`
	Resolved   int                 `json:"resolved"`
	Submitted  []domain.Submission `json:"submitted"`
	Errors     []string            `json:"errors,omitempty"`
}

// Archiver uploads cycle reports as JSON objects keyed by cycle start time.
type Archiver struct {
	writer domain.BlobWriter
	prefix string
}

// NewArchiver creates an Archiver writing under the given key prefix, for
// example "reports".
func NewArchiver(writer domain.BlobWriter, prefix string) *Archiver {
	if prefix == "" {
		prefix = "reports"
	}
	return &Archiver{writer: writer, prefix: prefix}
}

// Archive serializes the report and uploads it to
// <prefix>/YYYY/MM/DD/cycle-<unixnano>.json.
func (a *Archiver) Archive(ctx context.Context, report CycleReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal cycle report: %w", err)
	}

	ts := report.StartedAt.UTC()
	key := fmt.Sprintf("%s/%04d/%02d/%02d/cycle-%d.json",
		a.prefix, ts.Year(), ts.Month(), ts.Day(), ts.UnixNano())

	if err := a.writer.Put(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive cycle report: %w", err)
	}
	return nil
}

// Package audit records which source files the pipeline has processed and
// how each run went. The processed-file ledger is keyed by path and content
// checksum: a file delivered again with identical content is skipped, while
// the same path with new content (the overwritten master data exports) is
// processed again.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

// Kind classifies a run log entry.
type Kind string

const (
	KindDimension Kind = "dimension"
	KindFact      Kind = "fact"
	KindCalendar  Kind = "calendar"
)

// RunRecord is one stream's outcome within a batch run.
type RunRecord struct {
	Run         warehouse.BatchRun
	Stream      string
	Kind        Kind
	RowsIn      int
	RowsWritten int
	RowsSkipped int
	Duration    time.Duration
}

// Recorder is the pipeline's audit trail.
type Recorder interface {
	// AlreadyProcessed reports whether a file with this path and content
	// checksum has been ingested before.
	AlreadyProcessed(ctx context.Context, path, checksum string) (bool, error)

	// MarkProcessed stores the path/checksum pair after a successful load.
	MarkProcessed(ctx context.Context, path, checksum string, rows int, run warehouse.BatchRun) error

	// RecordRun appends one stream outcome to the run log.
	RecordRun(ctx context.Context, record RunRecord) error
}

// FileChecksum returns the hex encoded SHA-256 of the file's content.
func FileChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

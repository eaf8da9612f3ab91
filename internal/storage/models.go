package storage

import (
	"time"

	"github.com/google/uuid"
)

// RunRecord summarises one pipeline execution.
type RunRecord struct {
	RunID       uuid.UUID
	Pipeline    string
	RangeStart  *time.Time
	RangeEnd    *time.Time
	InputRows   int
	OutputRows  int
	SkippedRows int
	OutputPath  string
	StartedAt   time.Time
	FinishedAt  time.Time
	CreatedAt   time.Time
}

// Package task tracks analysis jobs in memory for the lifetime of the process.
package task

import (
	"errors"
	"time"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task transition")
)

// Task is a snapshot of one job. Result is set only when Status is
// StatusCompleted and Error only when Status is StatusFailed.
type Task struct {
	ID        string
	Status    Status
	Progress  int
	Message   string
	Result    *analysis.Result
	Error     string
	Filename  string
	MIMEType  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Default progress messages.
const (
	MsgPending   = "waiting for processing"
	MsgAnalyzing = "analyzing PDF document"
	MsgReporting = "generating analysis report"
	MsgCompleted = "analysis complete"
	msgFailedFmt = "analysis failed: %s"
)

// Progress checkpoints reported by the worker.
const (
	ProgressStart  = 10
	ProgressReport = 90
)

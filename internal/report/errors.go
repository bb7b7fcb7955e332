package report

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown report ids, stores or missing artifacts.
	ErrNotFound = errors.New("report: not found")
	// ErrPending is returned by Result while the job is still running.
	ErrPending = errors.New("report: still running")
	// ErrFailed is returned by Result for failed jobs; the wrapped message is
	// the failure reason.
	ErrFailed = errors.New("report: failed")
	// ErrInterrupted is the failure reason of jobs the previous process left
	// Running.
	ErrInterrupted = errors.New("interrupted: process stopped before the report finished")
)

// Stages at which a report job can fail as a whole.
const (
	StageEnumerate = "enumerate"
	StageReference = "reference"
	StageCompute   = "compute"
	StageSink      = "sink"
	StagePersist   = "persist"
)

// OrchestrationError is a job-level failure. It marks the job Failed.
type OrchestrationError struct {
	Stage string
	Err   error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error { return e.Err }

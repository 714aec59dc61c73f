package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTask is returned for tasks with a missing student, a year of
	// study outside 1..5 or a period outside the institution's vocabulary.
	ErrInvalidTask = errors.New("invalid ingestion task")

	// ErrNoDocument is returned for tasks without a document location.
	ErrNoDocument = errors.New("task has no document url")
)

// TaskError wraps a failure with the pipeline stage it happened in.
type TaskError struct {
	// Stage is the pipeline stage that failed (see metrics.Stage*).
	Stage string

	// Err is the underlying error.
	Err error

	// Details identifies the task, e.g. the document id.
	Details string
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ingest: %s failed: %s: %v", e.Stage, e.Details, e.Err)
	}
	return fmt.Sprintf("ingest: %s failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TaskError) Unwrap() error {
	return e.Err
}

func wrapStage(stage string, err error, details string) error {
	if err == nil {
		return nil
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return err
	}
	return &TaskError{Stage: stage, Err: err, Details: details}
}

// StageOf returns the stage of a TaskError, or "" for other errors.
func StageOf(err error) string {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Stage
	}
	return ""
}

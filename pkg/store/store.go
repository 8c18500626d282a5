// Package store records pipeline runs in a relational database.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go) and
// "postgres" (jackc/pgx through database/sql). The schema is managed by
// goose migrations embedded in the binary.
package store

import (
	"context"
	"time"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one recorded pipeline execution.
type Run struct {
	ID          string
	Dataset     string
	Coefficient string
	Reference   string
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time // zero while running

	// Features, Significant and Terms summarise the outcome.
	Features    int
	Significant int
	Terms       int

	// Location is where the run's artifacts were written.
	Location string
	Error    string
}

// Duration returns the wall time of a completed run.
func (r Run) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Store persists runs.
type Store interface {
	// CreateRun inserts r with status running. An empty ID is replaced by a
	// fresh UUID; r is updated in place.
	CreateRun(ctx context.Context, r *Run) error

	// FinishRun records the final state of a run.
	FinishRun(ctx context.Context, r *Run) error

	// GetRun loads a run by ID.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	Close() error
}

// Driver names.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

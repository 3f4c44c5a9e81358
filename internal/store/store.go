package store

import (
	"context"
	"errors"

	"github.com/me/kernsim/pkg/model"
)

// ErrNotFound is returned by DeleteReport when no run has the given ID.
var ErrNotFound = errors.New("run not found")

// Store defines the persistence layer for simulation run reports.
type Store interface {
	// SaveReport stores a finished run with its task metrics and request trace.
	SaveReport(ctx context.Context, r *model.Report) error
	// GetReport returns the full report, or nil if no run has that ID.
	GetReport(ctx context.Context, id string) (*model.Report, error)
	// ListReports returns run summaries, newest first, and the total count.
	ListReports(ctx context.Context, opts model.ListOptions) ([]*model.RunSummary, int, error)
	// DeleteReport removes a run. Missing runs are reported as an error.
	DeleteReport(ctx context.Context, id string) error

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

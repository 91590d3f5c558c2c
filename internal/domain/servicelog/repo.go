package servicelog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ServiceLogRepository interface {
	// Create inserts l, assigning ID and timestamps.
	Create(ctx context.Context, l *ServiceLog) error
	// GetByID returns ErrNotFound for unknown or deleted records.
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceLog, error)
	// Recent returns live records newest first.
	Recent(ctx context.Context, f Filter) ([]*ServiceLog, error)
	ListByDocument(ctx context.Context, documento string, limit int) ([]*ServiceLog, error)
	// UpdateStatus reports whether a live record matched.
	UpdateStatus(ctx context.Context, id uuid.UUID, state string, at time.Time) (bool, error)
	// BulkUpdateStatus returns the number of live records updated. Unknown
	// and deleted ids are skipped.
	BulkUpdateStatus(ctx context.Context, ids []uuid.UUID, state string, at time.Time) (int, error)
	// Delete soft-deletes and reports whether a live record matched.
	Delete(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)
	CountByState(ctx context.Context, state string) (int, error)
	// PurgeBefore hard-deletes records, deleted or not, whose timestamp is
	// before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

func newStats() *Stats {
	return &Stats{
		ByDepartment: make(map[string]int),
		ByDay:        make(map[string]int),
		Recent:       []*ServiceLog{},
	}
}

package patient

import (
	"context"
	"time"
)

type PatientRepository interface {
	// Create inserts p, assigning ID and timestamps. Returns ErrDuplicate when
	// a live patient already holds the document number.
	Create(ctx context.Context, p *Patient) error
	// GetByDocument returns ErrNotFound for unknown or deleted patients.
	GetByDocument(ctx context.Context, documento string) (*Patient, error)
	// ConfirmAppointment marks the appointment confirmed and reports whether a
	// live patient with an assigned doctor matched. Repeated calls match again
	// and keep the first confirmation time.
	ConfirmAppointment(ctx context.Context, documento string, at time.Time) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	ListConfirmed(ctx context.Context, limit int) ([]*Patient, error)
	// Delete soft-deletes and reports whether a live patient matched.
	Delete(ctx context.Context, documento string, at time.Time) (bool, error)
	Count(ctx context.Context) (int, error)
}

package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/totem/totem/internal/platform/cache"
	"github.com/totem/totem/pkg/validation"
)

// MaxConfirmed caps the confirmed-appointments listing.
const MaxConfirmed = 1000

// CacheKey returns the cache-aside key for a document lookup.
func CacheKey(documento string) string { return "patient:doc:" + documento }

type Service struct {
	repo  PatientRepository
	cache *cache.Cache
	now   func() time.Time
}

// NewService wires the patient service. c may be nil to disable caching.
func NewService(repo PatientRepository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c, now: func() time.Time { return time.Now().UTC() }}
}

// Lookup finds the patient for an already-normalized document number and
// classifies the result. A missing patient is LookupNotFound with a nil error.
func (s *Service) Lookup(ctx context.Context, documento string) (*Patient, LookupStatus, error) {
	p, err := cache.Fetch(ctx, s.cache, CacheKey(documento), func(ctx context.Context) (*Patient, error) {
		return s.repo.GetByDocument(ctx, documento)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, LookupNotFound, nil
	}
	if err != nil {
		return nil, LookupNotFound, fmt.Errorf("lookup patient: %w", err)
	}
	return p, statusOf(p), nil
}

// Confirm confirms the appointment of the patient holding documento. It is
// only valid from LookupFoundWithAppointment and is idempotent.
func (s *Service) Confirm(ctx context.Context, documento string) (*Patient, error) {
	ok, err := s.repo.ConfirmAppointment(ctx, documento, s.now())
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, CacheKey(documento))
	if !ok {
		p, err := s.repo.GetByDocument(ctx, documento)
		if err != nil {
			return nil, err
		}
		if !p.HasAppointment() {
			return nil, ErrNoAppointment
		}
		return nil, fmt.Errorf("confirm appointment %s: no row updated", documento)
	}
	return s.repo.GetByDocument(ctx, documento)
}

// Create registers a patient. The document number is normalized first.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	p.Document = validation.NormalizeDocument(p.Document)
	if !validation.IsValidDocument(p.Document) {
		return fmt.Errorf("%w: documento must have %d to %d digits", ErrInvalid, validation.MinDocumentDigits, validation.MaxDocumentDigits)
	}
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("%w: nombre and apellido are required", ErrInvalid)
	}
	if err := checkLengths(p); err != nil {
		return err
	}
	if !p.Appointment.Confirmed {
		p.Appointment.ConfirmedAt = nil
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, CacheKey(p.Document))
	return nil
}

// checkLengths rejects values wider than their columns.
func checkLengths(p *Patient) error {
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{"nombre", p.FirstName, validation.MaxNameLength},
		{"apellido", p.LastName, validation.MaxNameLength},
		{"turno.medico", p.Appointment.Doctor, validation.MaxDoctorLength},
		{"turno.hora", p.Appointment.Time, validation.MaxTimeLength},
		{"turno.piso", p.Appointment.Floor, validation.MaxFloorLength},
		{"turno.fecha", p.Appointment.Date, validation.MaxDateLength},
		{"turno.especialidad", p.Appointment.Specialty, validation.MaxSpecialtyLength},
		{"turno.consultorio", p.Appointment.Room, validation.MaxRoomLength},
	}
	for _, f := range fields {
		if !validation.FitsLength(f.value, f.max) {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalid, f.name, f.max)
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListConfirmed returns confirmed appointments, most recent confirmation first.
func (s *Service) ListConfirmed(ctx context.Context) ([]*Patient, error) {
	return s.repo.ListConfirmed(ctx, MaxConfirmed)
}

// Delete soft-deletes a patient. Returns ErrNotFound if no live patient holds
// the document.
func (s *Service) Delete(ctx context.Context, documento string) error {
	ok, err := s.repo.Delete(ctx, documento, s.now())
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, CacheKey(documento))
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

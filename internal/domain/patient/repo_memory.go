package patient

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo keeps patients in process memory. Used when no database is
// configured and in tests.
type memoryRepo struct {
	mu     sync.RWMutex
	byDoc  map[string]*Patient
	tombed []*Patient
}

func NewPatientRepoMemory() PatientRepository {
	return &memoryRepo{byDoc: make(map[string]*Patient)}
}

func clone(p *Patient) *Patient {
	cp := *p
	if p.Appointment.ConfirmedAt != nil {
		t := *p.Appointment.ConfirmedAt
		cp.Appointment.ConfirmedAt = &t
	}
	if p.DeletedAt != nil {
		t := *p.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func (r *memoryRepo) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byDoc[p.Document]; ok {
		return ErrDuplicate
	}
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.byDoc[p.Document] = clone(p)
	return nil
}

func (r *memoryRepo) GetByDocument(_ context.Context, documento string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byDoc[documento]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(p), nil
}

func (r *memoryRepo) ConfirmAppointment(_ context.Context, documento string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byDoc[documento]
	if !ok || !p.HasAppointment() {
		return false, nil
	}
	p.Appointment.Confirmed = true
	if p.Appointment.ConfirmedAt == nil {
		t := at
		p.Appointment.ConfirmedAt = &t
	}
	p.UpdatedAt = at
	return true, nil
}

func (r *memoryRepo) sorted() []*Patient {
	items := make([]*Patient, 0, len(r.byDoc))
	for _, p := range r.byDoc {
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].Document < items[j].Document
	})
	return items
}

func (r *memoryRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.sorted()
	total := len(all)
	items := []*Patient{}
	for i := offset; i < total && len(items) < limit; i++ {
		items = append(items, clone(all[i]))
	}
	return items, total, nil
}

func (r *memoryRepo) ListConfirmed(_ context.Context, limit int) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := []*Patient{}
	for _, p := range r.byDoc {
		if p.Appointment.Confirmed {
			items = append(items, clone(p))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Appointment.ConfirmedAt, items[j].Appointment.ConfirmedAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *memoryRepo) Delete(_ context.Context, documento string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byDoc[documento]
	if !ok {
		return false, nil
	}
	p.Deleted = true
	t := at
	p.DeletedAt = &t
	p.UpdatedAt = at
	delete(r.byDoc, documento)
	r.tombed = append(r.tombed, p)
	return true, nil
}

func (r *memoryRepo) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byDoc), nil
}

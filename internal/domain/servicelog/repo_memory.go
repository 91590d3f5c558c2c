package servicelog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/totem/totem/pkg/validation"
)

// memoryRepo keeps service logs in process memory. Used when no database is
// configured and in tests. Stats runs under one read lock, which gives it the
// same single-snapshot guarantee as the Postgres repository.
type memoryRepo struct {
	mu   sync.RWMutex
	logs map[uuid.UUID]*ServiceLog
	now  func() time.Time
}

func NewServiceLogRepoMemory() ServiceLogRepository {
	return &memoryRepo{
		logs: make(map[uuid.UUID]*ServiceLog),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func cloneLog(l *ServiceLog) *ServiceLog {
	cp := *l
	if l.DeletedAt != nil {
		t := *l.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func (r *memoryRepo) Create(_ context.Context, l *ServiceLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = uuid.New()
	now := r.now()
	if l.Timestamp.IsZero() {
		l.Timestamp = now
	}
	l.CreatedAt, l.UpdatedAt = now, now
	r.logs[l.ID] = cloneLog(l)
	return nil
}

func (r *memoryRepo) live(id uuid.UUID) (*ServiceLog, bool) {
	l, ok := r.logs[id]
	if !ok || l.Deleted {
		return nil, false
	}
	return l, true
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*ServiceLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.live(id)
	if !ok {
		return nil, ErrNotFound
	}
	return cloneLog(l), nil
}

// newestFirst returns live records matching keep, sorted by timestamp desc.
func (r *memoryRepo) newestFirst(keep func(*ServiceLog) bool) []*ServiceLog {
	var items []*ServiceLog
	for _, l := range r.logs {
		if !l.Deleted && keep(l) {
			items = append(items, l)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	return items
}

func head(items []*ServiceLog, limit int) []*ServiceLog {
	out := make([]*ServiceLog, 0, min(len(items), limit))
	for i := 0; i < len(items) && i < limit; i++ {
		out = append(out, cloneLog(items[i]))
	}
	return out
}

func (r *memoryRepo) Recent(_ context.Context, f Filter) ([]*ServiceLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := r.newestFirst(func(l *ServiceLog) bool {
		return (f.Department == "" || l.Department == f.Department) &&
			(f.State == "" || l.State == f.State)
	})
	return head(items, f.Limit), nil
}

func (r *memoryRepo) ListByDocument(_ context.Context, documento string, limit int) ([]*ServiceLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := r.newestFirst(func(l *ServiceLog) bool { return l.Document == documento })
	return head(items, limit), nil
}

func (r *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, state string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.live(id)
	if !ok {
		return false, nil
	}
	l.State = state
	l.UpdatedAt = at
	return true, nil
}

func (r *memoryRepo) BulkUpdateStatus(_ context.Context, ids []uuid.UUID, state string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[uuid.UUID]bool, len(ids))
	n := 0
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		l, ok := r.live(id)
		if !ok {
			continue
		}
		l.State = state
		l.UpdatedAt = at
		n++
	}
	return n, nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.live(id)
	if !ok {
		return false, nil
	}
	l.Deleted = true
	t := at
	l.DeletedAt = &t
	l.UpdatedAt = at
	return true, nil
}

func (r *memoryRepo) Stats(_ context.Context, since time.Time) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := newStats()
	for _, d := range validation.Departments() {
		st.ByDepartment[d] = 0
	}
	items := r.newestFirst(func(l *ServiceLog) bool { return !l.Timestamp.Before(since) })
	for _, l := range items {
		st.Total++
		st.ByDepartment[l.Department]++
		st.ByDay[l.Timestamp.UTC().Format(DayLayout)]++
	}
	st.Recent = head(items, StatsRecentLimit)
	return st, nil
}

func (r *memoryRepo) CountByState(_ context.Context, state string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, l := range r.logs {
		if !l.Deleted && l.State == state {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, l := range r.logs {
		if l.Timestamp.Before(cutoff) {
			delete(r.logs, id)
			n++
		}
	}
	return n, nil
}

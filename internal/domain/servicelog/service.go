package servicelog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/totem/totem/internal/platform/cache"
	"github.com/totem/totem/pkg/validation"
)

const (
	DefaultStatsDays = 7
	MinStatsDays     = 1
	MaxStatsDays     = 90

	// cachePrefix namespaces every cached service-log read; writes drop the
	// whole namespace.
	cachePrefix = "servicelog:"
)

// StatsCacheKey returns the cache key for a stats lookback.
func StatsCacheKey(days int) string { return cachePrefix + "stats:" + strconv.Itoa(days) }

type Service struct {
	repo  ServiceLogRepository
	cache *cache.Cache
	now   func() time.Time
}

// NewService wires the service-log service. c may be nil to disable caching.
func NewService(repo ServiceLogRepository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) invalidate(ctx context.Context) {
	s.cache.InvalidatePrefix(ctx, cachePrefix)
}

// Log records a desk request in state pendiente. A blank floor is filled in
// from the department.
func (s *Service) Log(ctx context.Context, documento, secretaria, piso string) (*ServiceLog, error) {
	if !validation.IsValidDocument(documento) {
		return nil, fmt.Errorf("%w: documento", ErrInvalid)
	}
	if !validation.IsValidDepartment(secretaria) {
		return nil, fmt.Errorf("%w: secretaria", ErrInvalid)
	}
	dept := validation.NormalizeDepartment(secretaria)
	floor := strings.TrimSpace(piso)
	if !validation.FitsLength(floor, validation.MaxFloorLength) {
		return nil, fmt.Errorf("%w: piso exceeds %d characters", ErrInvalid, validation.MaxFloorLength)
	}
	if floor == "" {
		floor = validation.DepartmentFloor(dept)
	}
	l := &ServiceLog{
		Document:   validation.NormalizeDocument(documento),
		Department: dept,
		Floor:      floor,
		State:      validation.StatePending,
		Timestamp:  s.now(),
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return l, nil
}

// Stats aggregates the last days days. days must lie in [1, 90].
func (s *Service) Stats(ctx context.Context, days int) (*Stats, error) {
	if days < MinStatsDays || days > MaxStatsDays {
		return nil, fmt.Errorf("%w: days must be between %d and %d", ErrInvalid, MinStatsDays, MaxStatsDays)
	}
	return cache.Fetch(ctx, s.cache, StatsCacheKey(days), func(ctx context.Context) (*Stats, error) {
		return s.repo.Stats(ctx, s.now().AddDate(0, 0, -days))
	})
}

// Recent lists live requests newest first. Filter values must already be
// validated; the department is normalized here.
func (s *Service) Recent(ctx context.Context, f Filter) ([]*ServiceLog, error) {
	f.Department = validation.NormalizeDepartment(f.Department)
	return s.repo.Recent(ctx, f)
}

// Get returns ErrNotFound for malformed, unknown or deleted ids.
func (s *Service) Get(ctx context.Context, id string) (*ServiceLog, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.repo.GetByID(ctx, uid)
}

func (s *Service) ListByDocument(ctx context.Context, documento string) ([]*ServiceLog, error) {
	return s.repo.ListByDocument(ctx, validation.NormalizeDocument(documento), ByDocumentLimit)
}

func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.repo.CountByState(ctx, validation.StatePending)
}

// UpdateStatus moves a request to state. Any transition between valid states
// is allowed.
func (s *Service) UpdateStatus(ctx context.Context, id, state string) (*ServiceLog, error) {
	if !validation.IsValidState(state) {
		return nil, fmt.Errorf("%w: estado", ErrInvalid)
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	ok, err := s.repo.UpdateStatus(ctx, uid, state, s.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	s.invalidate(ctx)
	return s.repo.GetByID(ctx, uid)
}

// BulkUpdateStatus returns how many live records were updated. Malformed,
// unknown and deleted ids are skipped.
func (s *Service) BulkUpdateStatus(ctx context.Context, ids []string, state string) (int, error) {
	if !validation.IsValidState(state) {
		return 0, fmt.Errorf("%w: estado", ErrInvalid)
	}
	uids := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		uid, err := uuid.Parse(id)
		if err != nil || seen[uid] {
			continue
		}
		seen[uid] = true
		uids = append(uids, uid)
	}
	n, err := s.repo.BulkUpdateStatus(ctx, uids, state, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx)
	}
	return n, nil
}

// Delete soft-deletes a request. A second delete returns ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	ok, err := s.repo.Delete(ctx, uid, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.invalidate(ctx)
	return nil
}

// Purge hard-deletes requests older than retention.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int, error) {
	n, err := s.repo.PurgeBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx)
	}
	return n, nil
}

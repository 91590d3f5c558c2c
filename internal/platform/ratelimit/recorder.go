package ratelimit

import (
	"context"
	"sync/atomic"
	"time"
)

// Event describes one admission decision.
type Event struct {
	Key     string
	Allowed bool
	Reason  Reason
	Method  string
	Path    string
	At      time.Time
}

// Totals are cumulative admission counts.
type Totals struct {
	Allowed   int64 `json:"allowed"`
	Burst     int64 `json:"burst_rejected"`
	Sustained int64 `json:"minute_rejected"`
}

// Rejected is the sum of both rejection kinds.
func (t Totals) Rejected() int64 { return t.Burst + t.Sustained }

// Recorder stores admission statistics. Implementations are best-effort:
// callers log errors and carry on.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
	Totals(ctx context.Context) (Totals, error)
}

// MemoryRecorder keeps process-local counters.
type MemoryRecorder struct {
	allowed   atomic.Int64
	burst     atomic.Int64
	sustained atomic.Int64
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, ev Event) error {
	switch {
	case ev.Allowed:
		r.allowed.Add(1)
	case ev.Reason == ReasonBurst:
		r.burst.Add(1)
	default:
		r.sustained.Add(1)
	}
	return nil
}

func (r *MemoryRecorder) Totals(_ context.Context) (Totals, error) {
	return Totals{
		Allowed:   r.allowed.Load(),
		Burst:     r.burst.Load(),
		Sustained: r.sustained.Load(),
	}, nil
}

// field maps an event onto the counter it increments.
func field(ev Event) string {
	switch {
	case ev.Allowed:
		return "allowed"
	case ev.Reason == ReasonBurst:
		return "burst"
	default:
		return "minute"
	}
}

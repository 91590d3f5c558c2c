package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryRecorder(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRecorder()

	require.NoError(t, r.Record(ctx, Event{Allowed: true}))
	require.NoError(t, r.Record(ctx, Event{Allowed: true}))
	require.NoError(t, r.Record(ctx, Event{Reason: ReasonBurst}))
	require.NoError(t, r.Record(ctx, Event{Reason: ReasonSustained}))

	tot, err := r.Totals(ctx)
	require.NoError(t, err)
	require.Equal(t, Totals{Allowed: 2, Burst: 1, Sustained: 1}, tot)
	require.EqualValues(t, 2, tot.Rejected())
}

func TestRedisRecorder_NilClientIsNoop(t *testing.T) {
	r := NewRedisRecorder(nil)
	require.NoError(t, r.Record(context.Background(), Event{Allowed: true}))
	tot, err := r.Totals(context.Background())
	require.NoError(t, err)
	require.Zero(t, tot)
}

func TestRedisRecorder_Keys(t *testing.T) {
	r := NewRedisRecorder(nil, WithRecorderPrefix(":kiosk:stats:"), WithRecorderTTL(time.Hour))
	require.Equal(t, "kiosk:stats:total", r.totalKey())
	require.Equal(t, "kiosk:stats:minute:202603020905",
		r.bucketKey(time.Date(2026, 3, 2, 9, 5, 30, 0, time.UTC)))
	require.Equal(t, time.Hour, r.ttl)
}

func TestRouteField(t *testing.T) {
	require.Equal(t, "GET /api/health:allowed", routeField("GET", "/api/health", "allowed"))
	require.Equal(t, "", routeField(" ", "", "burst"))
}

func TestField(t *testing.T) {
	require.Equal(t, "allowed", field(Event{Allowed: true}))
	require.Equal(t, "burst", field(Event{Reason: ReasonBurst}))
	require.Equal(t, "minute", field(Event{Reason: ReasonSustained}))
}

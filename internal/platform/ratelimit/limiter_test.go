package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestAdmit_BurstLimit(t *testing.T) {
	l := New(DefaultConfig())

	for i := 0; i < 20; i++ {
		d := l.Admit("kiosk-1", t0.Add(time.Duration(i)*10*time.Millisecond))
		require.True(t, d.Allowed, "request %d", i+1)
	}

	now := t0.Add(500 * time.Millisecond)
	d := l.Admit("kiosk-1", now)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonBurst, d.Reason)
	require.Equal(t, 10*time.Second, d.RetryAfter)
	require.Equal(t, now.Add(10*time.Second), d.Reset)
	require.Equal(t, 0, d.Remaining)

	// Once the 10s window has passed the client is admitted again.
	d = l.Admit("kiosk-1", t0.Add(11*time.Second))
	require.True(t, d.Allowed)
}

func TestAdmit_RejectedRequestsAreNotCounted(t *testing.T) {
	l := New(DefaultConfig())
	for i := 0; i < 20; i++ {
		l.Admit("k", t0)
	}
	for i := 0; i < 50; i++ {
		require.False(t, l.Admit("k", t0.Add(time.Second)).Allowed)
	}
	st := l.Snapshot(t0.Add(time.Second))
	require.Len(t, st.Clients, 1)
	require.Equal(t, 20, st.Clients[0].Sustained)
}

func TestAdmit_SustainedLimit(t *testing.T) {
	l := New(DefaultConfig())

	// 100 requests spread over 55s keep every 10s window under 20.
	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i) * 550 * time.Millisecond)
		d := l.Admit("kiosk-2", now)
		require.True(t, d.Allowed, "request %d", i+1)
		require.Equal(t, 100-(i+1), d.Remaining)
		require.Equal(t, 100, d.Limit)
	}

	now := t0.Add(56 * time.Second)
	d := l.Admit("kiosk-2", now)
	require.False(t, d.Allowed)
	require.Equal(t, ReasonSustained, d.Reason)
	require.Equal(t, time.Minute, d.RetryAfter)
	require.Equal(t, 60, d.RetryAfterSeconds())
	require.Equal(t, now.Add(time.Minute), d.Reset)
}

func TestAdmit_BurstCheckedFirst(t *testing.T) {
	l := New(Config{BurstLimit: 2, BurstWindow: 10 * time.Second, SustainedLimit: 2, SustainedWindow: time.Minute})
	l.Admit("k", t0)
	l.Admit("k", t0)
	d := l.Admit("k", t0)
	require.Equal(t, ReasonBurst, d.Reason)
}

func TestAdmit_ClientsAreIndependent(t *testing.T) {
	l := New(Config{BurstLimit: 1})
	require.True(t, l.Admit("a", t0).Allowed)
	require.False(t, l.Admit("a", t0).Allowed)
	require.True(t, l.Admit("b", t0).Allowed)
}

func TestAdmit_WindowBoundaryIsExclusive(t *testing.T) {
	l := New(Config{BurstLimit: 1, BurstWindow: 10 * time.Second})
	require.True(t, l.Admit("k", t0).Allowed)
	require.False(t, l.Admit("k", t0.Add(10*time.Second-time.Nanosecond)).Allowed)
	require.True(t, l.Admit("k", t0.Add(10*time.Second)).Allowed)
}

func TestAdmit_Concurrent(t *testing.T) {
	l := New(DefaultConfig())

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if l.Admit("shared", t0).Allowed {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 20, admitted.Load())
}

func TestAdmit_ConcurrentWithSweep(t *testing.T) {
	l := New(Config{BurstLimit: 1000, SustainedLimit: 1000})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for ctx.Err() == nil {
			l.Sweep(t0)
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Admit("k", t0)
			}
		}()
	}
	wg.Wait()
	cancel()

	st := l.Snapshot(t0)
	require.Len(t, st.Clients, 1)
	require.Equal(t, 400, st.Clients[0].Sustained)
}

func TestSweep_RemovesIdleClients(t *testing.T) {
	l := New(DefaultConfig())
	l.Admit("old", t0)
	l.Admit("fresh", t0.Add(50*time.Second))

	removed := l.Sweep(t0.Add(61 * time.Second))
	require.Equal(t, 1, removed)

	st := l.Snapshot(t0.Add(61 * time.Second))
	require.Equal(t, 1, st.ActiveClients)
	require.Equal(t, "fresh", st.Clients[0].Key)
}

func TestSnapshot_OrderedByUsage(t *testing.T) {
	l := New(DefaultConfig())
	l.Admit("one", t0)
	for i := 0; i < 3; i++ {
		l.Admit("three", t0)
	}
	l.Admit("two", t0)
	l.Admit("two", t0)

	st := l.Snapshot(t0.Add(time.Second))
	require.Equal(t, 3, st.ActiveClients)
	require.Equal(t, 20, st.BurstLimit)
	require.Equal(t, 100, st.SustainedLimit)
	require.Equal(t, []string{"three", "two", "one"},
		[]string{st.Clients[0].Key, st.Clients[1].Key, st.Clients[2].Key})
	require.Equal(t, 3, st.Clients[0].Burst)

	// Snapshot does not prune; usage outside the windows is simply not counted.
	st = l.Snapshot(t0.Add(2 * time.Minute))
	require.Zero(t, st.ActiveClients)
}

func TestStartCleanup_StopsOnCancel(t *testing.T) {
	l := New(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.StartCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartCleanup did not return after cancel")
	}
}

func TestNew_DefaultsForZeroConfig(t *testing.T) {
	require.Equal(t, DefaultConfig(), New(Config{}).Config())
}

func TestDecision_RetryAfterSeconds(t *testing.T) {
	require.Equal(t, 1, Decision{}.RetryAfterSeconds())
	require.Equal(t, 10, Decision{RetryAfter: 10 * time.Second}.RetryAfterSeconds())
	require.Equal(t, 2, Decision{RetryAfter: 1500 * time.Millisecond}.RetryAfterSeconds())
}

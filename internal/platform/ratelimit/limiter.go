// Package ratelimit implements the in-process admission control in front of
// every kiosk endpoint: two sliding windows per client, a short burst window
// and a longer sustained window.
//
// The limiter is best-effort. State lives in memory, is lost on restart and
// is not shared between instances.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Reason identifies which window rejected a request. Its string form is the
// error code sent to clients.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonBurst     Reason = "BURST_LIMIT_EXCEEDED"
	ReasonSustained Reason = "MINUTE_LIMIT_EXCEEDED"
)

// Config holds the window sizes and capacities.
type Config struct {
	BurstLimit      int
	BurstWindow     time.Duration
	SustainedLimit  int
	SustainedWindow time.Duration
}

// DefaultConfig returns 20 requests per 10s and 100 requests per minute.
func DefaultConfig() Config {
	return Config{
		BurstLimit:      20,
		BurstWindow:     10 * time.Second,
		SustainedLimit:  100,
		SustainedWindow: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BurstLimit <= 0 {
		c.BurstLimit = d.BurstLimit
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = d.BurstWindow
	}
	if c.SustainedLimit <= 0 {
		c.SustainedLimit = d.SustainedLimit
	}
	if c.SustainedWindow <= 0 {
		c.SustainedWindow = d.SustainedWindow
	}
	return c
}

// Decision is the outcome of a single Admit call.
type Decision struct {
	Allowed bool
	Reason  Reason
	// Limit and Remaining describe the sustained window, which is what the
	// X-RateLimit-* headers advertise.
	Limit     int
	Remaining int
	// Reset is when the window that decided the outcome frees up:
	// now + window size.
	Reset time.Time
	// RetryAfter is zero for admitted requests.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (d Decision) RetryAfterSeconds() int {
	s := int((d.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// window is an insertion-ordered list of request timestamps.
type window struct {
	size   time.Duration
	stamps []time.Time
}

// prune drops every timestamp at or before now-size. Timestamps are appended
// in order, so expired entries always form a prefix.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	n := copy(w.stamps, w.stamps[i:])
	w.stamps = w.stamps[:n]
}

func (w *window) len() int { return len(w.stamps) }

type clientWindows struct {
	mu        sync.Mutex
	burst     window
	sustained window
	evicted   bool
}

// Limiter tracks per-client windows. The zero value is not usable; call New.
type Limiter struct {
	cfg     Config
	mu      sync.RWMutex
	clients map[string]*clientWindows
}

// New creates a Limiter. Non-positive fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		clients: make(map[string]*clientWindows),
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config { return l.cfg }

func (l *Limiter) getClient(key string) *clientWindows {
	l.mu.RLock()
	cw, ok := l.clients[key]
	l.mu.RUnlock()
	if ok {
		return cw
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if cw, ok := l.clients[key]; ok {
		return cw
	}
	cw = &clientWindows{
		burst:     window{size: l.cfg.BurstWindow},
		sustained: window{size: l.cfg.SustainedWindow},
	}
	l.clients[key] = cw
	return cw
}

// Admit decides whether the client identified by key may issue a request at
// now. Prune, check and append happen under the client's lock, so two
// concurrent requests from one client cannot both slip past a limit.
func (l *Limiter) Admit(key string, now time.Time) Decision {
	for {
		cw := l.getClient(key)
		cw.mu.Lock()
		if cw.evicted {
			// Swept between lookup and lock; retry against the fresh entry.
			cw.mu.Unlock()
			continue
		}
		d := l.admitLocked(cw, now)
		cw.mu.Unlock()
		return d
	}
}

func (l *Limiter) admitLocked(cw *clientWindows, now time.Time) Decision {
	cw.burst.prune(now)
	cw.sustained.prune(now)

	d := Decision{Limit: l.cfg.SustainedLimit}

	if cw.burst.len() >= l.cfg.BurstLimit {
		d.Reason = ReasonBurst
		d.Reset = now.Add(l.cfg.BurstWindow)
		d.RetryAfter = l.cfg.BurstWindow
		return d
	}
	if cw.sustained.len() >= l.cfg.SustainedLimit {
		d.Reason = ReasonSustained
		d.Reset = now.Add(l.cfg.SustainedWindow)
		d.RetryAfter = l.cfg.SustainedWindow
		return d
	}

	cw.burst.stamps = append(cw.burst.stamps, now)
	cw.sustained.stamps = append(cw.sustained.stamps, now)

	d.Allowed = true
	d.Remaining = l.cfg.SustainedLimit - cw.sustained.len()
	d.Reset = now.Add(l.cfg.SustainedWindow)
	return d
}

// Sweep prunes every client and forgets those whose windows are both empty.
// It returns the number of clients removed.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, cw := range l.clients {
		cw.mu.Lock()
		cw.burst.prune(now)
		cw.sustained.prune(now)
		if cw.burst.len() == 0 && cw.sustained.len() == 0 {
			cw.evicted = true
			delete(l.clients, key)
			removed++
		}
		cw.mu.Unlock()
	}
	return removed
}

// StartCleanup sweeps idle clients every interval until ctx is cancelled.
// It blocks, so run it in a goroutine.
func (l *Limiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			l.Sweep(t)
		}
	}
}

// ClientUsage is the current window occupancy for one client.
type ClientUsage struct {
	Key       string `json:"client"`
	Burst     int    `json:"burst"`
	Sustained int    `json:"per_minute"`
}

// Stats summarizes limiter state for the metrics endpoint.
type Stats struct {
	ActiveClients  int           `json:"active_clients"`
	BurstLimit     int           `json:"burst_limit"`
	SustainedLimit int           `json:"per_minute_limit"`
	Clients        []ClientUsage `json:"clients"`
}

// Snapshot reports usage for every tracked client, busiest first. Windows are
// counted as of now without being modified.
func (l *Limiter) Snapshot(now time.Time) Stats {
	l.mu.RLock()
	keys := make([]string, 0, len(l.clients))
	entries := make([]*clientWindows, 0, len(l.clients))
	for k, cw := range l.clients {
		keys = append(keys, k)
		entries = append(entries, cw)
	}
	l.mu.RUnlock()

	st := Stats{
		BurstLimit:     l.cfg.BurstLimit,
		SustainedLimit: l.cfg.SustainedLimit,
		Clients:        make([]ClientUsage, 0, len(keys)),
	}
	for i, cw := range entries {
		cw.mu.Lock()
		u := ClientUsage{
			Key:       keys[i],
			Burst:     countSince(cw.burst.stamps, now.Add(-cw.burst.size)),
			Sustained: countSince(cw.sustained.stamps, now.Add(-cw.sustained.size)),
		}
		cw.mu.Unlock()
		if u.Sustained > 0 {
			st.Clients = append(st.Clients, u)
		}
	}
	st.ActiveClients = len(st.Clients)
	sort.Slice(st.Clients, func(i, j int) bool {
		if st.Clients[i].Sustained != st.Clients[j].Sustained {
			return st.Clients[i].Sustained > st.Clients[j].Sustained
		}
		return st.Clients[i].Key < st.Clients[j].Key
	})
	return st
}

func countSince(stamps []time.Time, cutoff time.Time) int {
	i := sort.Search(len(stamps), func(i int) bool { return stamps[i].After(cutoff) })
	return len(stamps) - i
}

// Package health tracks request outcomes, samples host resources and probes
// external dependencies, folding everything into a single status summary.
package health

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Status is a component or overall health level.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// MaxSamples bounds the response-time ring.
const MaxSamples = 1000

// DefaultProbeInterval is how often Run refreshes the report.
const DefaultProbeInterval = 30 * time.Second

// Prober checks one external dependency. Details are included in the report
// whether or not the probe fails.
type Prober interface {
	Name() string
	Probe(ctx context.Context) (map[string]interface{}, error)
}

// PingProber adapts a ping function into a Prober.
type PingProber struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingProber(name string, ping func(ctx context.Context) error) *PingProber {
	return &PingProber{name: name, ping: ping}
}

func (p *PingProber) Name() string { return p.name }

func (p *PingProber) Probe(ctx context.Context) (map[string]interface{}, error) {
	return nil, p.ping(ctx)
}

// Thresholds classify API health from error rate and mean latency.
type Thresholds struct {
	ErrorRateWarning  float64
	ErrorRateCritical float64
	LatencyWarning    time.Duration
	LatencyCritical   time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ErrorRateWarning:  5,
		ErrorRateCritical: 10,
		LatencyWarning:    time.Second,
		LatencyCritical:   3 * time.Second,
	}
}

// Options configure a Monitor.
type Options struct {
	Version     string
	Environment string
	Debug       bool
	Thresholds  Thresholds
	Logger      zerolog.Logger
	// System samples host resources. Defaults to SampleSystem.
	System func(ctx context.Context) (*SystemMetrics, error)
}

// Monitor is safe for concurrent use.
type Monitor struct {
	opts    Options
	probers []Prober
	start   time.Time
	now     func() time.Time

	requests atomic.Int64
	errors   atomic.Int64

	mu      sync.Mutex
	samples []time.Duration
	next    int

	lastMu   sync.RWMutex
	last     *Report
	onReport []func(*Report)
}

func NewMonitor(opts Options, probers ...Prober) *Monitor {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.System == nil {
		opts.System = SampleSystem
	}
	return &Monitor{
		opts:    opts,
		probers: probers,
		start:   time.Now(),
		now:     time.Now,
		samples: make([]time.Duration, 0, MaxSamples),
	}
}

// AddProber registers another dependency check.
func (m *Monitor) AddProber(p Prober) {
	m.probers = append(m.probers, p)
}

// OnReport registers a callback invoked after every background probe.
func (m *Monitor) OnReport(fn func(*Report)) {
	m.onReport = append(m.onReport, fn)
}

// RecordRequest adds one completed request to the counters.
func (m *Monitor) RecordRequest(d time.Duration, isErr bool) {
	m.requests.Add(1)
	if isErr {
		m.errors.Add(1)
	}
	m.mu.Lock()
	if len(m.samples) < MaxSamples {
		m.samples = append(m.samples, d)
	} else {
		m.samples[m.next] = d
	}
	m.next = (m.next + 1) % MaxSamples
	m.mu.Unlock()
}

// Reset clears the request counters and samples.
func (m *Monitor) Reset() {
	m.requests.Store(0)
	m.errors.Store(0)
	m.mu.Lock()
	m.samples = m.samples[:0]
	m.next = 0
	m.mu.Unlock()
}

// ResponseTimes summarizes the sample ring in milliseconds.
type ResponseTimes struct {
	AverageMS float64 `json:"average_ms"`
	MinMS     float64 `json:"min_ms"`
	MaxMS     float64 `json:"max_ms"`
	P95MS     float64 `json:"p95_ms"`
	P99MS     float64 `json:"p99_ms"`
}

// APIMetrics describes request handling since start or the last Reset.
type APIMetrics struct {
	UptimeSeconds     float64       `json:"uptime_seconds"`
	UptimeHuman       string        `json:"uptime_human"`
	TotalRequests     int64         `json:"total_requests"`
	TotalErrors       int64         `json:"total_errors"`
	ErrorRatePercent  float64       `json:"error_rate_percent"`
	RequestsPerSecond float64       `json:"requests_per_second"`
	ResponseTimes     ResponseTimes `json:"response_times"`
	Status            Status        `json:"status"`
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func ms(d time.Duration) float64 { return round2(float64(d) / float64(time.Millisecond)) }

// percentile picks the sample at index int(n*q), falling back to the maximum.
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[idx]
}

// API computes the request metrics.
func (m *Monitor) API() APIMetrics {
	m.mu.Lock()
	sorted := make([]time.Duration, len(m.samples))
	copy(sorted, m.samples)
	m.mu.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	uptime := m.now().Sub(m.start)
	total, errs := m.requests.Load(), m.errors.Load()

	out := APIMetrics{
		UptimeSeconds: round2(uptime.Seconds()),
		UptimeHuman:   uptime.Truncate(time.Second).String(),
		TotalRequests: total,
		TotalErrors:   errs,
	}
	if total > 0 {
		out.ErrorRatePercent = round2(float64(errs) / float64(total) * 100)
	}
	if uptime > 0 {
		out.RequestsPerSecond = round2(float64(total) / uptime.Seconds())
	}

	var avg time.Duration
	if n := len(sorted); n > 0 {
		var sum time.Duration
		for _, d := range sorted {
			sum += d
		}
		avg = sum / time.Duration(n)
		out.ResponseTimes = ResponseTimes{
			AverageMS: ms(avg),
			MinMS:     ms(sorted[0]),
			MaxMS:     ms(sorted[n-1]),
			P95MS:     ms(percentile(sorted, 0.95)),
			P99MS:     ms(percentile(sorted, 0.99)),
		}
	}
	out.Status = m.apiStatus(avg, out.ErrorRatePercent)
	return out
}

func (m *Monitor) apiStatus(avg time.Duration, errorRate float64) Status {
	t := m.opts.Thresholds
	switch {
	case errorRate > t.ErrorRateCritical:
		return StatusCritical
	case errorRate > t.ErrorRateWarning:
		return StatusWarning
	case avg > t.LatencyCritical:
		return StatusCritical
	case avg > t.LatencyWarning:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// DependencyCheck is the outcome of one Prober.
type DependencyCheck struct {
	Status    Status                 `json:"status"`
	LatencyMS float64                `json:"latency_ms"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// EnvironmentInfo identifies the running build.
type EnvironmentInfo struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Debug       bool   `json:"debug"`
}

// Report is the full health summary.
type Report struct {
	Status      Status                     `json:"status"`
	Timestamp   time.Time                  `json:"timestamp"`
	System      *SystemMetrics             `json:"system"`
	Checks      map[string]DependencyCheck `json:"checks"`
	API         APIMetrics                 `json:"api"`
	Environment EnvironmentInfo            `json:"environment"`
}

// Ready reports whether every dependency answered.
func (r *Report) Ready() bool {
	for _, c := range r.Checks {
		if c.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

func (m *Monitor) probeAll(ctx context.Context) map[string]DependencyCheck {
	checks := make(map[string]DependencyCheck, len(m.probers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range m.probers {
		wg.Add(1)
		go func(p Prober) {
			defer wg.Done()
			start := time.Now()
			details, err := p.Probe(ctx)
			check := DependencyCheck{
				Status:    StatusHealthy,
				LatencyMS: ms(time.Since(start)),
				Details:   details,
			}
			if err != nil {
				check.Status = StatusUnhealthy
				check.Error = err.Error()
				m.opts.Logger.Warn().Err(err).Str("dependency", p.Name()).Msg("health probe failed")
			}
			mu.Lock()
			checks[p.Name()] = check
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return checks
}

// Check builds a fresh report.
func (m *Monitor) Check(ctx context.Context) *Report {
	r := &Report{
		Timestamp: m.now().UTC(),
		Checks:    m.probeAll(ctx),
		API:       m.API(),
		Environment: EnvironmentInfo{
			Environment: m.opts.Environment,
			Version:     m.opts.Version,
			Debug:       m.opts.Debug,
		},
	}
	sys, err := m.opts.System(ctx)
	if err != nil {
		m.opts.Logger.Warn().Err(err).Msg("system metrics unavailable")
		sys = &SystemMetrics{Error: err.Error()}
	}
	r.System = sys

	statuses := []Status{r.API.Status}
	if err == nil {
		statuses = append(statuses, sys.CPU.Status, sys.Memory.Status, sys.Disk.Status)
	}
	for _, c := range r.Checks {
		statuses = append(statuses, c.Status)
	}
	r.Status = Overall(statuses...)
	return r
}

// Overall folds component statuses: any critical wins, then warning, then
// unhealthy. Unknown statuses are ignored.
func Overall(statuses ...Status) Status {
	has := make(map[Status]bool, len(statuses))
	allHealthy := true
	for _, s := range statuses {
		has[s] = true
		if s != StatusHealthy && s != StatusUnknown && s != "" {
			allHealthy = false
		}
	}
	switch {
	case has[StatusCritical]:
		return StatusCritical
	case has[StatusWarning]:
		return StatusWarning
	case has[StatusUnhealthy]:
		return StatusUnhealthy
	case allHealthy:
		return StatusHealthy
	default:
		return StatusDegraded
	}
}

// Latest returns the last report produced by Run, or nil.
func (m *Monitor) Latest() *Report {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	return m.last
}

// ProbeOnce refreshes the stored report and notifies OnReport callbacks.
func (m *Monitor) ProbeOnce(ctx context.Context) *Report {
	r := m.Check(ctx)
	m.lastMu.Lock()
	m.last = r
	m.lastMu.Unlock()

	switch r.Status {
	case StatusCritical, StatusUnhealthy:
		m.opts.Logger.Error().Str("status", string(r.Status)).Msg("health check")
	case StatusWarning, StatusDegraded:
		m.opts.Logger.Warn().Str("status", string(r.Status)).Msg("health check")
	default:
		m.opts.Logger.Debug().Str("status", string(r.Status)).Msg("health check")
	}
	for _, fn := range m.onReport {
		fn(r)
	}
	return r
}

// Run probes every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m.ProbeOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeOnce(ctx)
		}
	}
}

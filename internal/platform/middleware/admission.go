package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/totem/totem/internal/platform/apierror"
	"github.com/totem/totem/internal/platform/ratelimit"
	"github.com/totem/totem/internal/platform/telemetry"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"

	recordTimeout = 200 * time.Millisecond
)

// AdmissionConfig wires the limiter middleware. Only Limiter is required.
type AdmissionConfig struct {
	Limiter  *ratelimit.Limiter
	Recorder ratelimit.Recorder
	Metrics  *telemetry.Provider
	Logger   zerolog.Logger
	// Skipper exempts requests from admission entirely.
	Skipper func(c echo.Context) bool
	// RejectLogRate caps rejection warnings per second. Defaults to 1 with a
	// burst of 5.
	RejectLogRate rate.Limit
	Now           func() time.Time
}

// Admission runs every request through the limiter before any handler logic.
// Admitted requests carry X-RateLimit-* headers; rejected ones get a 429 with
// Retry-After.
func Admission(cfg AdmissionConfig) echo.MiddlewareFunc {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RejectLogRate <= 0 {
		cfg.RejectLogRate = 1
	}
	logLimiter := rate.NewLimiter(cfg.RejectLogRate, 5)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			req := c.Request()
			now := cfg.Now()
			key := ratelimit.ClientKey(c.RealIP(), req.UserAgent())
			d := cfg.Limiter.Admit(key, now)

			h := c.Response().Header()
			h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
			h.Set(HeaderRateLimitReset, strconv.FormatInt(d.Reset.Unix(), 10))

			ev := ratelimit.Event{
				Key:     key,
				Allowed: d.Allowed,
				Reason:  d.Reason,
				Method:  req.Method,
				Path:    c.Path(),
				At:      now,
			}
			record(req.Context(), cfg, ev, logLimiter)

			if d.Allowed {
				return next(c)
			}

			if logLimiter.Allow() {
				rid, _ := c.Get("request_id").(string)
				cfg.Logger.Warn().
					Str("request_id", rid).
					Str("client", key).
					Str("reason", string(d.Reason)).
					Str("path", req.URL.Path).
					Msg("request rejected by rate limiter")
			}
			retry := d.RetryAfterSeconds()
			h.Set("Retry-After", strconv.Itoa(retry))
			return apierror.RateLimited(string(d.Reason), retry)
		}
	}
}

func outcome(ev ratelimit.Event) string {
	switch {
	case ev.Allowed:
		return telemetry.OutcomeAllowed
	case ev.Reason == ratelimit.ReasonBurst:
		return telemetry.OutcomeBurst
	default:
		return telemetry.OutcomeMinute
	}
}

func record(ctx context.Context, cfg AdmissionConfig, ev ratelimit.Event, logLimiter *rate.Limiter) {
	cfg.Metrics.RecordAdmission(outcome(ev))
	if cfg.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	if err := cfg.Recorder.Record(ctx, ev); err != nil && logLimiter.Allow() {
		cfg.Logger.Warn().Err(err).Msg("admission recorder failed")
	}
}

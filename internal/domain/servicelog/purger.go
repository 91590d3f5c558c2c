package servicelog

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetention is how long service logs are kept.
const DefaultRetention = 90 * 24 * time.Hour

// Purger periodically hard-deletes service logs older than the retention
// window. It runs outside request handling.
type Purger struct {
	svc       *Service
	retention time.Duration
	logger    zerolog.Logger
}

func NewPurger(svc *Service, retention time.Duration, logger zerolog.Logger) *Purger {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Purger{
		svc:       svc,
		retention: retention,
		logger:    logger.With().Str("component", "servicelog-purger").Logger(),
	}
}

// PurgeOnce runs a single sweep and returns the number of records removed.
func (p *Purger) PurgeOnce(ctx context.Context) (int, error) {
	n, err := p.svc.Purge(ctx, p.retention)
	if err != nil {
		p.logger.Error().Err(err).Msg("purge failed")
		return 0, err
	}
	if n > 0 {
		p.logger.Info().Int("deleted", n).Dur("retention", p.retention).Msg("purged old service logs")
	}
	return n, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (p *Purger) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	_, _ = p.PurgeOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.PurgeOnce(ctx)
		}
	}
}

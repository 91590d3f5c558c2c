package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Prober pings the pool for the health monitor.
type Prober struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewProber(pool *pgxpool.Pool) *Prober {
	return &Prober{pool: pool, timeout: 5 * time.Second}
}

// Name identifies the dependency in health reports.
func (p *Prober) Name() string { return "database" }

// Probe pings the database and reports pool statistics.
func (p *Prober) Probe(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pool.Ping(ctx)
	stats := GetPoolStats(p.pool)
	if err != nil {
		stats.Healthy = false
	}
	return map[string]interface{}{"pool": stats}, err
}

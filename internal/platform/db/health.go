package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
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

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check reports the health of the vocabulary database as a component of the
// /health document.
type Check struct {
	db    Pinger
	stats func() *PoolStats
}

// NewCheck builds a health check over a pool.
func NewCheck(pool *pgxpool.Pool) *Check {
	return &Check{db: pool, stats: func() *PoolStats { return GetPoolStats(pool) }}
}

// Status pings the database and returns a status string plus details.
func (h *Check) Status(ctx context.Context) (string, map[string]interface{}) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	details := map[string]interface{}{}
	if h.stats != nil {
		details["pool"] = h.stats()
	}
	if err := h.db.Ping(ctx); err != nil {
		details["error"] = err.Error()
		return "unhealthy", details
	}
	return "healthy", details
}

// HealthHandler returns a handler for the database health check endpoint.
func (h *Check) HealthHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		status, details := h.Status(c.Request().Context())
		details["status"] = status
		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, details)
	}
}

// PoolGauge receives pool connection counts.
type PoolGauge interface {
	SetDBPool(active, idle int32)
}

// ReportPoolStats publishes pool stats to g every interval until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, g PoolGauge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		stat := pool.Stat()
		g.SetDBPool(stat.AcquiredConns(), stat.IdleConns())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

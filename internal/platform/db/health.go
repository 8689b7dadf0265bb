package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the JSON view of pgxpool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// HealthReport is returned by /health/db.
type HealthReport struct {
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Latency   string     `json:"latency"`
	CheckedAt time.Time  `json:"checked_at"`
	Pool      *PoolStats `json:"pool,omitempty"`
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

func poolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check pings the database with a five second deadline.
func Check(ctx context.Context, p Pinger) *HealthReport {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	report := &HealthReport{
		Status:    "healthy",
		Latency:   time.Since(start).String(),
		CheckedAt: time.Now().UTC(),
	}
	if err != nil {
		report.Status = "unhealthy"
		report.Error = err.Error()
	}
	if pool, ok := p.(*pgxpool.Pool); ok {
		report.Pool = poolStats(pool)
	}
	return report
}

func HealthHandler(p Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		report := Check(c.Request().Context(), p)
		if report.Status != "healthy" {
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}

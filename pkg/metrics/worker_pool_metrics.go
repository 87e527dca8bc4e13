package metrics

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// =============================================================================
// Database Pool Monitor
// =============================================================================

// DBPoolStats holds pgx connection pool statistics.
type DBPoolStats struct {
	TotalConns    int32         `json:"total_conns"`
	AcquiredConns int32         `json:"acquired_conns"`
	IdleConns     int32         `json:"idle_conns"`
	MaxConns      int32         `json:"max_conns"`
	EmptyAcquire  int64         `json:"empty_acquire_count"`
	AcquireWait   time.Duration `json:"acquire_duration"`
}

// GetDBPoolStats reads statistics from a pgx pool.
func GetDBPoolStats(pool *pgxpool.Pool) DBPoolStats {
	if pool == nil {
		return DBPoolStats{}
	}
	s := pool.Stat()
	return DBPoolStats{
		TotalConns:    s.TotalConns(),
		AcquiredConns: s.AcquiredConns(),
		IdleConns:     s.IdleConns(),
		MaxConns:      s.MaxConns(),
		EmptyAcquire:  s.EmptyAcquireCount(),
		AcquireWait:   s.AcquireDuration(),
	}
}

// PoolHealthStatus indicates the health of a connection pool.
type PoolHealthStatus string

const (
	PoolHealthy   PoolHealthStatus = "healthy"
	PoolDegraded  PoolHealthStatus = "degraded"
	PoolUnhealthy PoolHealthStatus = "unhealthy"
)

// PoolHealth represents the health assessment of a pool.
type PoolHealth struct {
	Status      PoolHealthStatus `json:"status"`
	Utilization float64          `json:"utilization"`
	Message     string           `json:"message,omitempty"`
}

// AssessDBPoolHealth evaluates pool utilization.
func AssessDBPoolHealth(stats DBPoolStats) PoolHealth {
	if stats.MaxConns == 0 {
		return PoolHealth{Status: PoolHealthy, Message: "pool not initialized"}
	}

	utilization := float64(stats.AcquiredConns) / float64(stats.MaxConns)

	switch {
	case utilization >= 0.95:
		return PoolHealth{Status: PoolUnhealthy, Utilization: utilization, Message: "pool nearly exhausted"}
	case utilization >= 0.80:
		return PoolHealth{Status: PoolDegraded, Utilization: utilization, Message: "high pool utilization"}
	}
	return PoolHealth{Status: PoolHealthy, Utilization: utilization, Message: "pool operating normally"}
}

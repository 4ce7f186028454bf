package monitoring

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const defaultProbeTimeout = 2 * time.Second

// Database returns a readiness probe that pings the configured database handle.
func Database(db *gorm.DB, timeout time.Duration) Check {
	return NewCheck("database", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if db == nil {
			return ProbeResult{
				Status:   StatusDown,
				Details:  "database not configured",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return ResultFromError("database", err, time.Since(start))
		}

		return ProbeResult{Status: StatusUp, Duration: time.Since(start)}
	})
}

// RedisPinger represents the minimal interface required to probe a redis
// connection.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis returns a readiness probe for the configured Redis cache. When
// disabled, the probe reports StatusUp with a descriptive message to aid
// operators.
func Redis(client RedisPinger, enabled bool, timeout time.Duration) Check {
	return NewCheck("redis", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if !enabled {
			return ProbeResult{
				Status:   StatusUp,
				Details:  "redis disabled",
				Duration: time.Since(start),
			}
		}
		if client == nil {
			return ProbeResult{
				Status:   StatusDegraded,
				Details:  "redis unavailable",
				Duration: time.Since(start),
			}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		if err := client.Ping(probeCtx); err != nil {
			return ResultFromError("redis", err, time.Since(start))
		}

		return ProbeResult{Status: StatusUp, Duration: time.Since(start)}
	})
}

func chooseTimeout(provided time.Duration) time.Duration {
	if provided <= 0 {
		return defaultProbeTimeout
	}
	return provided
}

package postgres

import "context"

// HealthChecker implements ports.HealthChecker for the database.
type HealthChecker struct {
	pool Pool
}

func NewHealthChecker(pool Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

func (h *HealthChecker) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

func (h *HealthChecker) Name() string {
	return "postgresql"
}

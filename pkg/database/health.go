package database

import (
	"context"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus reports store reachability plus connection pool statistics for
// the health endpoint.
type HealthStatus struct {
	Healthy         bool   `json:"healthy"`
	Engine          string `json:"engine"`
	Message         string `json:"message,omitempty"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
}

// Health pings the store with a short timeout and snapshots pool stats.
func (c *Client) Health(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	status := HealthStatus{Engine: string(c.engine)}
	if err := c.db.PingContext(ctx); err != nil {
		status.Message = err.Error()
		return status
	}

	stats := c.db.Stats()
	status.Healthy = true
	status.OpenConnections = stats.OpenConnections
	status.InUse = stats.InUse
	status.Idle = stats.Idle
	return status
}

package timescaledb

import (
	"context"
	"time"

	"github.com/stoffej/water-rrd-m.nu/internal/database"
	"github.com/stoffej/water-rrd-m.nu/internal/log"
	"github.com/stoffej/water-rrd-m.nu/internal/storage"
)

// HealthCheckInterval is how often the background monitor pings the database.
const HealthCheckInterval = 60 * time.Second

// CheckHealth pings the database and records a failure with the health
// manager when it does not answer.
func (t *Storage) CheckHealth(ctx context.Context) error {
	if t.TimescaleDBConn == nil {
		err := errNoConnection
		storage.GlobalHealthManager.RecordFailure(engineName, err)
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.Ping(cctx, t.TimescaleDBConn); err != nil {
		storage.GlobalHealthManager.RecordFailure(engineName, err)
		return err
	}
	return nil
}

// StartHealthMonitor runs CheckHealth every HealthCheckInterval until ctx is
// done.
func (t *Storage) StartHealthMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := t.CheckHealth(ctx); err != nil {
					log.Warnf("TimescaleDB health check failed: %v", err)
				}
			case <-ctx.Done():
				log.Info("stopping TimescaleDB health monitor")
				return
			}
		}
	}()
}

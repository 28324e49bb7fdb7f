package storage

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// RegisterPoolMetrics publishes connection pool gauges on meter.
func (db *DB) RegisterPoolMetrics(meter metric.Meter) error {
	total, err := meter.Int64ObservableGauge("skijump.db.pool.connections",
		metric.WithDescription("Open connections in the pool"))
	if err != nil {
		return fmt.Errorf("storage: pool metrics: %w", err)
	}
	acquired, err := meter.Int64ObservableGauge("skijump.db.pool.acquired",
		metric.WithDescription("Connections currently in use"))
	if err != nil {
		return fmt.Errorf("storage: pool metrics: %w", err)
	}
	idle, err := meter.Int64ObservableGauge("skijump.db.pool.idle",
		metric.WithDescription("Idle connections"))
	if err != nil {
		return fmt.Errorf("storage: pool metrics: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		st := db.pool.Stat()
		o.ObserveInt64(total, int64(st.TotalConns()))
		o.ObserveInt64(acquired, int64(st.AcquiredConns()))
		o.ObserveInt64(idle, int64(st.IdleConns()))
		return nil
	}, total, acquired, idle)
	if err != nil {
		return fmt.Errorf("storage: pool metrics callback: %w", err)
	}
	return nil
}

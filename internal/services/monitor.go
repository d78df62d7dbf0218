package services

import (
	"context"
	"log"
	"time"

	"github.com/agrichain/marketplace/internal/metrics"
	"github.com/agrichain/marketplace/internal/models"
	"github.com/agrichain/marketplace/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InventoryMonitor periodically reports cart and stock gauges
type InventoryMonitor struct {
	store     store.Store
	metrics   *metrics.AppMetrics
	interval  time.Duration
	threshold int
}

// DefaultMonitorInterval is used when the configured interval is not positive
const DefaultMonitorInterval = 30 * time.Second

// NewInventoryMonitor creates a monitor. Products with quantity at or below
// threshold count as low stock.
func NewInventoryMonitor(s store.Store, m *metrics.AppMetrics, interval time.Duration, threshold int) *InventoryMonitor {
	if interval <= 0 {
		log.Printf("[MONITOR] Warning: interval %s is not positive, using %s", interval, DefaultMonitorInterval)
		interval = DefaultMonitorInterval
	}
	return &InventoryMonitor{store: s, metrics: m, interval: interval, threshold: threshold}
}

// Run sweeps on every tick until ctx is cancelled
func (mon *InventoryMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(mon.interval)
	defer ticker.Stop()

	log.Printf("[MONITOR] Inventory monitor started (every %s, low stock <= %d)", mon.interval, mon.threshold)
	for {
		select {
		case <-ctx.Done():
			log.Println("[MONITOR] Inventory monitor stopped")
			return
		case <-ticker.C:
			if _, err := mon.Sweep(ctx); err != nil {
				log.Printf("[MONITOR] Sweep failed: %v", err)
			}
		}
	}
}

// SweepResult summarises one sweep
type SweepResult struct {
	ActiveCarts int
	Products    int
	LowStock    int
}

// Sweep records the gauges once
func (mon *InventoryMonitor) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	count, err := mon.store.CountActiveCarts(ctx)
	if err != nil {
		return res, err
	}
	res.ActiveCarts = count
	mon.metrics.ActiveCartsCount.Record(ctx, int64(count), metric.WithAttributes(mon.metrics.WithServiceName([]attribute.KeyValue{})...))

	products, err := mon.store.ListProducts(ctx, models.ProductFilter{})
	if err != nil {
		return res, err
	}
	res.Products = len(products)
	for _, p := range products {
		mon.metrics.RecordInventory(ctx, p.ID, p.Quantity)
		if p.Quantity <= mon.threshold {
			res.LowStock++
		}
	}
	mon.metrics.LowStockProducts.Record(ctx, int64(res.LowStock), metric.WithAttributes(mon.metrics.WithServiceName([]attribute.KeyValue{
		attribute.Int("threshold", mon.threshold),
	})...))

	return res, nil
}

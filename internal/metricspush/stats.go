package metricspush

import (
	"context"
	"errors"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// CatalogStats holds point-in-time catalog sizes on a private registry so
// pushes never carry the request-scoped series served on /metrics.
type CatalogStats struct {
	registry  *prometheus.Registry
	products  prometheus.Gauge
	canonical prometheus.Gauge
	offers    prometheus.Gauge
	providers prometheus.Gauge
	uploads   prometheus.Gauge
	memory    prometheus.Gauge
}

func NewCatalogStats(serviceName, environment string) *CatalogStats {
	constLabels := prometheus.Labels{}
	if serviceName != "" {
		constLabels["service"] = serviceName
	}
	if environment != "" {
		constLabels["environment"] = environment
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "quicksearch",
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}

	s := &CatalogStats{
		registry:  prometheus.NewRegistry(),
		products:  gauge("catalog_products", "Products in the catalog."),
		canonical: gauge("catalog_canonical_products", "Products carrying a canonical key."),
		offers:    gauge("catalog_offers", "Provider offers in the catalog."),
		providers: gauge("catalog_providers", "Distinct providers with at least one offer."),
		uploads:   gauge("catalog_uploads", "Recorded upload batches."),
		memory:    gauge("process_memory_bytes", "Memory obtained from the OS."),
	}
	s.registry.MustRegister(s.products, s.canonical, s.offers, s.providers, s.uploads, s.memory)
	return s
}

func (s *CatalogStats) Registry() *prometheus.Registry {
	return s.registry
}

// Refresh recounts every gauge. Gauges whose query fails keep their last value.
func (s *CatalogStats) Refresh(ctx context.Context, db *gorm.DB) error {
	if s == nil {
		return nil
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.memory.Set(float64(m.Sys))

	if db == nil {
		return nil
	}
	queries := []struct {
		gauge prometheus.Gauge
		sql   string
	}{
		{s.products, `SELECT COUNT(*) FROM products`},
		{s.canonical, `SELECT COUNT(*) FROM products WHERE canonical_key IS NOT NULL`},
		{s.offers, `SELECT COUNT(*) FROM product_prices`},
		{s.providers, `SELECT COUNT(DISTINCT provider_name) FROM product_prices`},
		{s.uploads, `SELECT COUNT(*) FROM uploads`},
	}

	var errs []error
	for _, q := range queries {
		var count int64
		if err := db.WithContext(ctx).Raw(q.sql).Scan(&count).Error; err != nil {
			errs = append(errs, err)
			continue
		}
		q.gauge.Set(float64(count))
	}
	return errors.Join(errs...)
}

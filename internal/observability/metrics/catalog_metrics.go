package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	NormalizeReasonDeadlineExceeded     = "deadline_exceeded"
	NormalizeReasonDBLockTimeout        = "db_lock_timeout"
	NormalizeReasonSerializationFailure = "serialization_failure"
	NormalizeReasonUniqueViolation      = "unique_violation"
	NormalizeReasonLocked               = "locked"
	NormalizeReasonUnknown              = "unknown"
)

const (
	NormalizeItemProductsVisited  = "products_visited"
	NormalizeItemOffersMoved      = "offers_moved"
	NormalizeItemCanonicalCreated = "canonical_created"
	NormalizeItemOrphansDeleted   = "orphans_deleted"
	NormalizeItemUnmatched        = "unmatched"
	NormalizeItemFailed           = "failed"
)

// ErrNormalizeLocked marks a run skipped because another instance holds the lock.
var ErrNormalizeLocked = errors.New("normalize_locked")

// CatalogMetrics captures catalog normalization and ingest health.
type CatalogMetrics struct {
	normalizeRuns     prometheus.Counter
	normalizeDuration prometheus.Histogram
	normalizeItems    *prometheus.CounterVec
	normalizeErrors   *prometheus.CounterVec
	uploads           *prometheus.CounterVec
	uploadRows        *prometheus.CounterVec
}

// NewCatalogMetrics registers the catalog collectors on registerer.
func NewCatalogMetrics(registerer prometheus.Registerer, cfg Config) *CatalogMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := serviceLabels(cfg)

	normalizeRuns := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "quicksearch_catalog_normalize_runs_total",
		Help:        "Catalog normalization runs.",
		ConstLabels: constLabels,
	})
	normalizeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "quicksearch_catalog_normalize_duration_seconds",
		Help:        "Catalog normalization run latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	normalizeItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quicksearch_catalog_normalize_items_total",
		Help:        "Items touched by catalog normalization, by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	normalizeErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quicksearch_catalog_normalize_errors_total",
		Help:        "Catalog normalization failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quicksearch_uploads_total",
		Help:        "Price list uploads by file format.",
		ConstLabels: constLabels,
	}, []string{"format"})
	uploadRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "quicksearch_upload_rows_total",
		Help:        "Upload rows by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	registerer.MustRegister(
		normalizeRuns,
		normalizeDuration,
		normalizeItems,
		normalizeErrors,
		uploads,
		uploadRows,
	)

	return &CatalogMetrics{
		normalizeRuns:     normalizeRuns,
		normalizeDuration: normalizeDuration,
		normalizeItems:    normalizeItems,
		normalizeErrors:   normalizeErrors,
		uploads:           uploads,
		uploadRows:        uploadRows,
	}
}

func serviceLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "quicksearch"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

// ObserveNormalizeRun records one finished normalization run.
func (m *CatalogMetrics) ObserveNormalizeRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.normalizeRuns.Inc()
	m.normalizeDuration.Observe(duration.Seconds())
}

// AddNormalizeItems adds count to the counter for kind.
func (m *CatalogMetrics) AddNormalizeItems(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.normalizeItems.WithLabelValues(kind).Add(float64(count))
}

// IncNormalizeError increments the error counter with classification.
func (m *CatalogMetrics) IncNormalizeError(err error) {
	if m == nil || err == nil {
		return
	}
	m.normalizeErrors.WithLabelValues(ClassifyNormalizeFailure(err)).Inc()
}

// IncUpload counts an accepted upload by format (xlsx, xls, csv).
func (m *CatalogMetrics) IncUpload(format string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(strings.ToLower(strings.TrimSpace(format))).Inc()
}

// AddUploadRows adds processed or skipped row counts.
func (m *CatalogMetrics) AddUploadRows(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.uploadRows.WithLabelValues(outcome).Add(float64(count))
}

// ClassifyNormalizeFailure maps normalization errors to low-cardinality reasons.
func ClassifyNormalizeFailure(err error) string {
	if err == nil {
		return NormalizeReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NormalizeReasonDeadlineExceeded
	}
	if errors.Is(err, ErrNormalizeLocked) {
		return NormalizeReasonLocked
	}
	if hasPGCode(err, "55P03") {
		return NormalizeReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return NormalizeReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return NormalizeReasonUniqueViolation
	}
	return NormalizeReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

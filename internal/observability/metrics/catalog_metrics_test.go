package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyNormalizeFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: NormalizeReasonDeadlineExceeded},
		{name: "locked", err: fmt.Errorf("run: %w", ErrNormalizeLocked), want: NormalizeReasonLocked},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: NormalizeReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: NormalizeReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: NormalizeReasonUniqueViolation},
		{name: "pg_unique_violation", err: &pgconn.PgError{Code: "23505"}, want: NormalizeReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: NormalizeReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyNormalizeFailure(tc.err))
		})
	}
}

func TestCatalogMetricsCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewCatalogMetrics(registry, Config{ServiceName: "quicksearch", Environment: "test"})

	m.ObserveNormalizeRun(150 * time.Millisecond)
	m.AddNormalizeItems(NormalizeItemOffersMoved, 3)
	m.AddNormalizeItems(NormalizeItemOrphansDeleted, 0)
	m.IncNormalizeError(&pgconn.PgError{Code: "40001"})
	m.IncUpload("XLSX")
	m.AddUploadRows("processed", 12)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.normalizeRuns))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.normalizeItems.WithLabelValues(NormalizeItemOffersMoved)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.normalizeItems.WithLabelValues(NormalizeItemOrphansDeleted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.normalizeErrors.WithLabelValues(NormalizeReasonSerializationFailure)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.uploads.WithLabelValues("xlsx")))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.uploadRows.WithLabelValues("processed")))
}

func TestCatalogMetricsNilSafe(t *testing.T) {
	var m *CatalogMetrics
	assert.NotPanics(t, func() {
		m.ObserveNormalizeRun(time.Second)
		m.IncNormalizeError(errors.New("boom"))
		m.AddUploadRows("skipped", 2)
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewHTTPMetrics(registry, Config{})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/api/search", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/search?q=x", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/search?q=y", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/api/search", "200")))
}

package metricspush

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/quicksearch/internal/catalog/catalogtest"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "uploads_total", Help: "uploads"}, []string{"format"})
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalog_products", Help: "products"})
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "normalize_seconds", Help: "duration"})
	reg.MustRegister(counter, gauge, histogram)

	counter.WithLabelValues("csv").Add(3)
	gauge.Set(42)
	histogram.Observe(0.5)
	return reg
}

func TestBuildRemoteWriteSeriesSkipsHistograms(t *testing.T) {
	families, err := testRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 2)

	byName := map[string]prompb.TimeSeries{}
	for _, s := range series {
		byName[s.Labels[0].Value] = s
	}
	assert.Equal(t, 42.0, byName["catalog_products"].Samples[0].Value)
	assert.Equal(t, int64(1000), byName["catalog_products"].Samples[0].Timestamp)

	uploads := byName["uploads_total"]
	require.Len(t, uploads.Labels, 2)
	assert.Equal(t, "__name__", uploads.Labels[0].Name)
	assert.Equal(t, prompb.Label{Name: "format", Value: "csv"}, uploads.Labels[1])
	assert.Equal(t, 3.0, uploads.Samples[0].Value)
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var got prompb.WriteRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, proto.Unmarshal(decoded, protoadapt.MessageV2Of(&got)))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	p := NewRemoteWritePusher(srv.URL, " secret ")
	p.now = func() time.Time { return time.UnixMilli(5000) }
	require.NoError(t, p.Push(context.Background(), testRegistry(t)))

	assert.Equal(t, "snappy", headers.Get("Content-Encoding"))
	assert.Equal(t, "application/x-protobuf", headers.Get("Content-Type"))
	assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
	require.Len(t, got.Timeseries, 2)
	assert.Equal(t, int64(5000), got.Timeseries[0].Samples[0].Timestamp)
}

func TestRemoteWritePusherReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	assert.Error(t, err)
}

func TestPushgatewayPusherUsesJobAndGrouping(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	p := NewPushgatewayPusher(srv.URL, "quicksearch", map[string]string{"environment": "test", "": "skipped"})
	require.NoError(t, p.Push(context.Background(), testRegistry(t)))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/quicksearch/environment/test", path)

	assert.Error(t, NewPushgatewayPusher(srv.URL, " ", nil).Push(context.Background(), testRegistry(t)))
}

func TestNewPusher(t *testing.T) {
	cfg := func(exporter, endpoint string) config.Config {
		return config.Config{AppName: "quicksearch", Push: config.PushConfig{Exporter: exporter, Endpoint: endpoint}}
	}

	assert.Nil(t, NewPusher(cfg("", "http://collector"), zap.NewNop()))
	assert.Nil(t, NewPusher(cfg(ExporterRemoteWrite, ""), zap.NewNop()))
	assert.Nil(t, NewPusher(cfg(ExporterRemoteWrite, "not a url"), zap.NewNop()))
	assert.Nil(t, NewPusher(cfg("statsd", "http://collector"), zap.NewNop()))

	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg(ExporterRemoteWrite, "http://collector/api/v1/write"), nil))
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg(ExporterPushgateway, "http://gateway:9091"), nil))
}

func TestCatalogStatsRefresh(t *testing.T) {
	db := catalogtest.NewDB(t)
	seed := catalogtest.NewSeeder(t, db)

	hose := seed.Product("Manguera 1 1/2", catalogtest.WithCanonicalKey("MANGUERA_1_1/2"))
	tape := seed.Product("Cinta teflon")
	seed.Price(hose, "ARD", "100.00")
	seed.Price(hose, "LACAR", "95.00")
	seed.Price(tape, "ARD", "12.50")

	stats := NewCatalogStats("quicksearch", "test")
	require.NoError(t, stats.Refresh(context.Background(), db))

	assert.Equal(t, 2.0, testutil.ToFloat64(stats.products))
	assert.Equal(t, 1.0, testutil.ToFloat64(stats.canonical))
	assert.Equal(t, 3.0, testutil.ToFloat64(stats.offers))
	assert.Equal(t, 2.0, testutil.ToFloat64(stats.providers))
	assert.Equal(t, 0.0, testutil.ToFloat64(stats.uploads))
	assert.Greater(t, testutil.ToFloat64(stats.memory), 0.0)

	count, err := testutil.GatherAndCount(stats.Registry())
	require.NoError(t, err)
	assert.Equal(t, 6, count)
}

func TestPushOnceRefreshesBeforePushing(t *testing.T) {
	db := catalogtest.NewDB(t)
	catalogtest.NewSeeder(t, db).Product("Manguera")

	stats := NewCatalogStats("", "")
	rec := &recordingPusher{}
	require.NoError(t, pushOnce(context.Background(), stats, rec, db, zap.NewNop()))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 1.0, rec.products)
}

type recordingPusher struct {
	calls    int
	products float64
}

func (r *recordingPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	r.calls++
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		if f.GetName() == "quicksearch_catalog_products" {
			r.products = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return nil
}

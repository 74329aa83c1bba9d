package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/quicksearch/internal/cache"
	"github.com/smallbiznis/quicksearch/internal/canonical"
	canonicaldomain "github.com/smallbiznis/quicksearch/internal/canonical/domain"
	"github.com/smallbiznis/quicksearch/internal/catalog"
	"github.com/smallbiznis/quicksearch/internal/config"
	"github.com/smallbiznis/quicksearch/internal/ingest"
	ingestdomain "github.com/smallbiznis/quicksearch/internal/ingest/domain"
	"github.com/smallbiznis/quicksearch/internal/observability"
	obsmiddleware "github.com/smallbiznis/quicksearch/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quicksearch/internal/observability/metrics"
	obstracing "github.com/smallbiznis/quicksearch/internal/observability/tracing"
	"github.com/smallbiznis/quicksearch/internal/offer"
	offerdomain "github.com/smallbiznis/quicksearch/internal/offer/domain"
	"github.com/smallbiznis/quicksearch/internal/ratelimit"
	"github.com/smallbiznis/quicksearch/internal/search"
	searchdomain "github.com/smallbiznis/quicksearch/internal/search/domain"
	"github.com/smallbiznis/quicksearch/internal/settings"
	settingsdomain "github.com/smallbiznis/quicksearch/internal/settings/domain"
	"github.com/smallbiznis/quicksearch/internal/vendordict"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	vendordict.Module,
	catalog.Module,
	cache.Module,
	ratelimit.Module,
	search.Module,
	offer.Module,
	canonical.Module,
	settings.Module,
	ingest.Module,
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	searchSvc      searchdomain.Service
	offerSvc       offerdomain.Service
	normalizer     canonicaldomain.Service
	ingestSvc      ingestdomain.Service
	settingsSvc    settingsdomain.Service
	suggestLimiter *ratelimit.SuggestLimiter
	obsMetrics     *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	SearchSvc      searchdomain.Service
	OfferSvc       offerdomain.Service
	Normalizer     canonicaldomain.Service
	IngestSvc      ingestdomain.Service
	SettingsSvc    settingsdomain.Service
	SuggestLimiter *ratelimit.SuggestLimiter `optional:"true"`
	ObsMetrics     *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		searchSvc:      p.SearchSvc,
		offerSvc:       p.OfferSvc,
		normalizer:     p.Normalizer,
		ingestSvc:      p.IngestSvc,
		settingsSvc:    p.SettingsSvc,
		suggestLimiter: p.SuggestLimiter,
		obsMetrics:     p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Search --------
	api.GET("/search", s.Search)
	api.GET("/suggest", s.SuggestRateLimit(), s.Suggest)

	// -------- Products --------
	api.GET("/products/:id/offers", s.ListProductOffers)

	// -------- Uploads --------
	api.POST("/uploads", s.CreateUpload)
	api.GET("/uploads", s.ListUploads)
	api.DELETE("/uploads/:id", s.DeleteUpload)

	// -------- Catalog --------
	api.POST("/catalog/normalize", s.NormalizeCatalog)

	// -------- Settings --------
	api.GET("/settings", s.GetSettings)
	api.PUT("/settings", s.UpdateSettings)

	// -------- Pricing --------
	api.GET("/price", s.CalculatePrice)
}

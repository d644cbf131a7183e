package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidewatch/aquameter/internal/alert"
	alertdomain "github.com/tidewatch/aquameter/internal/alert/domain"
	"github.com/tidewatch/aquameter/internal/billing"
	"github.com/tidewatch/aquameter/internal/config"
	"github.com/tidewatch/aquameter/internal/dashboard"
	dashboarddomain "github.com/tidewatch/aquameter/internal/dashboard/domain"
	"github.com/tidewatch/aquameter/internal/device"
	devicedomain "github.com/tidewatch/aquameter/internal/device/domain"
	"github.com/tidewatch/aquameter/internal/identity"
	"github.com/tidewatch/aquameter/internal/metrics"
	"github.com/tidewatch/aquameter/internal/ratelimit"
	"github.com/tidewatch/aquameter/internal/reading"
	readingdomain "github.com/tidewatch/aquameter/internal/reading/domain"
	"github.com/tidewatch/aquameter/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	metrics.Module,
	billing.Module,
	device.Module,
	reading.Module,
	alert.Module,
	dashboard.Module,
	identity.Module,
	ratelimit.Module,
	telemetry.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	pipeline      *telemetry.Pipeline
	deviceSvc     devicedomain.Service
	readingSvc    readingdomain.Service
	alertSvc      alertdomain.Service
	dashboardSvc  dashboarddomain.Service
	owners        identity.Resolver
	ingestLimiter *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Pipeline      *telemetry.Pipeline
	DeviceSvc     devicedomain.Service
	ReadingSvc    readingdomain.Service
	AlertSvc      alertdomain.Service
	DashboardSvc  dashboarddomain.Service
	Owners        identity.Resolver
	IngestLimiter *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		pipeline:      p.Pipeline,
		deviceSvc:     p.DeviceSvc,
		readingSvc:    p.ReadingSvc,
		alertSvc:      p.AlertSvc,
		dashboardSvc:  p.DashboardSvc,
		owners:        p.Owners,
		ingestLimiter: p.IngestLimiter,
	}
}

func registerRoutes(s *Server) {
	s.registerAPIRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Ingestion (device credential) --------
	api.POST("/data", s.DeviceKeyRequired(), s.IngestRateLimit(), s.IngestReading)

	// -------- Read side (owner credential) --------
	api.GET("/data", s.OwnerRequired(), s.ListReadings)
	api.GET("/devices", s.OwnerRequired(), s.ListDevices)
	api.GET("/alerts", s.OwnerRequired(), s.ListAlerts)
	api.POST("/alerts/:id/resolve", s.OwnerRequired(), s.ResolveAlert)
	api.GET("/dashboard/stats", s.OwnerRequired(), s.GetDashboardStats)
}

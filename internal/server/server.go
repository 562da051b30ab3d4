package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	accesstokendomain "github.com/Johanhagos/mijn-api/internal/accesstoken/domain"
	"github.com/Johanhagos/mijn-api/internal/config"
	"github.com/Johanhagos/mijn-api/internal/observability"
	obsmiddleware "github.com/Johanhagos/mijn-api/internal/observability/logger"
	obsmetrics "github.com/Johanhagos/mijn-api/internal/observability/metrics"
	obstracing "github.com/Johanhagos/mijn-api/internal/observability/tracing"
	"github.com/Johanhagos/mijn-api/internal/payment/webhook"
	"github.com/Johanhagos/mijn-api/internal/ratelimit"
	"github.com/Johanhagos/mijn-api/internal/reconcile"
	sessiondomain "github.com/Johanhagos/mijn-api/internal/session/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
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
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// webhookIngester is satisfied by *webhook.Service.
type webhookIngester interface {
	Ingest(ctx context.Context, provider string, payload []byte, headers http.Header) (webhook.Result, error)
}

// statusLimiter is satisfied by *ratelimit.StatusLimiter.
type statusLimiter interface {
	Allow(ctx context.Context, clientID string) (ratelimit.Result, error)
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	sessions      sessiondomain.Service
	webhooks      webhookIngester
	reconciler    reconcile.Reconciler
	tokens        accesstokendomain.Service
	statusLimiter statusLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Sessions      sessiondomain.Service
	Webhooks      *webhook.Service
	Reconciler    reconcile.Reconciler
	Tokens        accesstokendomain.Service
	StatusLimiter *ratelimit.StatusLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http"),
		sessions:      p.Sessions,
		webhooks:      p.Webhooks,
		reconciler:    p.Reconciler,
		tokens:        p.Tokens,
		statusLimiter: p.StatusLimiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerWebhookRoutes()
	svc.registerSessionRoutes()
	svc.registerAccessRoutes()
	if !svc.cfg.IsProduction() {
		svc.registerDevRoutes()
	}
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerSessionRoutes() {
	s.engine.POST("/sessions", s.CreateSession)
	s.engine.GET("/session/:id/status", s.StatusRateLimit(), s.GetSessionStatus)
}

func (s *Server) registerAccessRoutes() {
	s.engine.GET("/access/:token", s.VerifyAccessToken)
}

// registerDevRoutes exposes manual state changes for local testing only.
func (s *Server) registerDevRoutes() {
	s.log.Warn("dev session routes enabled", zap.String("environment", s.cfg.Environment))

	dev := s.engine.Group("/session/:id")
	dev.POST("/complete", s.CompleteSession)
	dev.POST("/pending", s.MarkSessionPending)
	dev.POST("/fail", s.FailSession)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

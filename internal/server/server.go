package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/learnsphere/tutorpay/internal/catalog/domain"
	"github.com/learnsphere/tutorpay/internal/config"
	intentdomain "github.com/learnsphere/tutorpay/internal/intent/domain"
	"github.com/learnsphere/tutorpay/internal/observability"
	obsmiddleware "github.com/learnsphere/tutorpay/internal/observability/logger"
	obsmetrics "github.com/learnsphere/tutorpay/internal/observability/metrics"
	obstracing "github.com/learnsphere/tutorpay/internal/observability/tracing"
	"github.com/learnsphere/tutorpay/internal/ratelimit"
	"github.com/learnsphere/tutorpay/internal/reporting"
	"github.com/learnsphere/tutorpay/internal/settlement"
	"github.com/learnsphere/tutorpay/internal/webhook"
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
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config
	Log *zap.Logger

	IntentSvc    intentdomain.Service
	CatalogSvc   catalogdomain.Service
	Settlement   *settlement.Service
	WebhookSvc   *webhook.Service
	ReportingSvc *reporting.Service
	Limiter      *ratelimit.PaymentLimiter `optional:"true"`
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	intentSvc    intentdomain.Service
	catalogSvc   catalogdomain.Service
	settlement   *settlement.Service
	webhookSvc   *webhook.Service
	reportingSvc *reporting.Service
	limiter      *ratelimit.PaymentLimiter
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		intentSvc:    p.IntentSvc,
		catalogSvc:   p.CatalogSvc,
		settlement:   p.Settlement,
		webhookSvc:   p.WebhookSvc,
		reportingSvc: p.ReportingSvc,
		limiter:      p.Limiter,
	}

	svc.registerPaymentRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")

	payments.POST("/create-order", s.CreateOrder)
	payments.GET("/payment-status/:intent_id", s.GetPaymentStatus)
	payments.POST("/verify", s.VerifyPayment)
	payments.POST("/webhook", s.HandleGatewayWebhook)
	payments.GET("/reports/summary", s.GetPaymentsSummary)
}

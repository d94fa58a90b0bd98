package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	accountdomain "github.com/smallbiznis/recouply/internal/account/domain"
	"github.com/smallbiznis/recouply/internal/config"
	debtordomain "github.com/smallbiznis/recouply/internal/debtor/domain"
	"github.com/smallbiznis/recouply/internal/engine"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	"github.com/smallbiznis/recouply/internal/observability"
	obsmiddleware "github.com/smallbiznis/recouply/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recouply/internal/observability/metrics"
	obstracing "github.com/smallbiznis/recouply/internal/observability/tracing"
	outreachdomain "github.com/smallbiznis/recouply/internal/outreach/domain"
	"github.com/smallbiznis/recouply/internal/ratelimit"
	recondomain "github.com/smallbiznis/recouply/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
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

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
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

// Runner executes one engine cycle on demand.
type Runner interface {
	RunOnce(ctx context.Context) (engine.Summary, error)
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	accountRepo    accountdomain.Repository
	debtorSvc      debtordomain.Service
	invoiceSvc     invoicedomain.Service
	outreachSvc    outreachdomain.Service
	reconciliation recondomain.Service
	runner         Runner
	limiter        *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	AccountRepo    accountdomain.Repository
	DebtorSvc      debtordomain.Service
	InvoiceSvc     invoicedomain.Service
	OutreachSvc    outreachdomain.Service
	Reconciliation recondomain.Service
	Engine         *engine.Engine
	Limiter        *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("http.server"),
		accountRepo:    p.AccountRepo,
		debtorSvc:      p.DebtorSvc,
		invoiceSvc:     p.InvoiceSvc,
		outreachSvc:    p.OutreachSvc,
		reconciliation: p.Reconciliation,
		runner:         p.Engine,
		limiter:        p.Limiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Engine --------
	api.POST("/engine/run", s.RunEngine)

	scoped := api.Group("", s.AccountRequired())

	// -------- Ingestion --------
	scoped.POST("/uploads", s.IngestRateLimit(), s.Upload)
	scoped.POST("/payments", s.IngestRateLimit(), s.RecordPayment)

	// -------- Outreach --------
	scoped.POST("/workflows", s.CreateWorkflow)
	scoped.GET("/drafts", s.ListDrafts)
	scoped.POST("/drafts/:id/approve", s.ApproveDraft)
	scoped.POST("/drafts/:id/dispatch-result", s.RecordDispatchResult)

	// -------- Manual corrections --------
	scoped.POST("/invoices/:id/status", s.UpdateInvoiceStatus)
	scoped.POST("/invoices/:id/outreach", s.SetInvoiceOutreach)
	scoped.POST("/debtors/:id/outreach", s.SetDebtorOutreach)
}

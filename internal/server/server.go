package server

import (
	"context"
	"net/http"
	"time"

	"github.com/agencyops/credcore/internal/audit"
	auditdomain "github.com/agencyops/credcore/internal/audit/domain"
	"github.com/agencyops/credcore/internal/config"
	"github.com/agencyops/credcore/internal/ledger"
	ledgerdomain "github.com/agencyops/credcore/internal/ledger/domain"
	obsmiddleware "github.com/agencyops/credcore/internal/observability/logger"
	obsmetrics "github.com/agencyops/credcore/internal/observability/metrics"
	"github.com/agencyops/credcore/internal/organization"
	organizationdomain "github.com/agencyops/credcore/internal/organization/domain"
	"github.com/agencyops/credcore/internal/plan"
	plandomain "github.com/agencyops/credcore/internal/plan/domain"
	"github.com/agencyops/credcore/internal/ratelimit"
	"github.com/agencyops/credcore/internal/scheduler"
	"github.com/agencyops/credcore/internal/subscription"
	subscriptiondomain "github.com/agencyops/credcore/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	ledger.Module,
	organization.Module,
	plan.Module,
	ratelimit.Module,
	subscription.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	genID           *snowflake.Node
	auditSvc        auditdomain.Service
	ledgerSvc       ledgerdomain.Service
	organizationSvc organizationdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	txnLimiter      *ratelimit.TransactionLimiter
	scheduler       *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	GenID           *snowflake.Node
	AuditSvc        auditdomain.Service
	LedgerSvc       ledgerdomain.Service
	OrganizationSvc organizationdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	TxnLimiter      *ratelimit.TransactionLimiter `optional:"true"`
	Scheduler       *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		genID:           p.GenID,
		auditSvc:        p.AuditSvc,
		ledgerSvc:       p.LedgerSvc,
		organizationSvc: p.OrganizationSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		txnLimiter:      p.TxnLimiter,
		scheduler:       p.Scheduler,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Organizations --------
	api.GET("/organizations", s.ListOrganizations)
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations/:orgId", s.GetOrganization)
	api.PATCH("/organizations/:orgId", s.UpdateOrganization)
	api.PUT("/organizations/:orgId/status", s.SetOrganizationStatus)

	// -------- Ledger --------
	api.GET("/organizations/:orgId/balance", s.GetBalance)
	api.GET("/organizations/:orgId/ledger", s.ListLedgerEntries)
	api.POST("/organizations/:orgId/transactions", s.TransactionRateLimit(), s.AddTransaction)

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)
	api.POST("/plans", s.CreatePlan)
	api.GET("/plans/:id", s.GetPlanByID)
	api.PATCH("/plans/:id", s.UpdatePlan)
	api.PUT("/plans/:id/active", s.SetPlanActive)
	api.DELETE("/plans/:id", s.DeletePlan)

	// -------- Subscriptions --------
	api.GET("/organizations/:orgId/subscription", s.GetSubscription)
	api.POST("/organizations/:orgId/subscription/start", s.StartSubscription)
	api.POST("/organizations/:orgId/subscription/pause", s.PauseSubscription)
	api.POST("/organizations/:orgId/subscription/resume", s.ResumeSubscription)
	api.POST("/organizations/:orgId/subscription/cancel", s.CancelSubscription)

	// -------- Refill engine --------
	api.GET("/refill/due", s.ListDueForRefill)
	api.POST("/refill/run", s.RunRefillBatch)
	api.GET("/refill/executions", s.ListRefillExecutions)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

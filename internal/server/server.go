package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/matchhub/internal/audit/domain"
	"github.com/smallbiznis/matchhub/internal/authorization"
	campaigndomain "github.com/smallbiznis/matchhub/internal/campaign/domain"
	chatdomain "github.com/smallbiznis/matchhub/internal/chat/domain"
	"github.com/smallbiznis/matchhub/internal/config"
	ledgerdomain "github.com/smallbiznis/matchhub/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/matchhub/internal/notification/domain"
	"github.com/smallbiznis/matchhub/internal/observability"
	obsmiddleware "github.com/smallbiznis/matchhub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/matchhub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/matchhub/internal/observability/tracing"
	profiledomain "github.com/smallbiznis/matchhub/internal/profile/domain"
	"github.com/smallbiznis/matchhub/internal/ratelimit"
	reviewdomain "github.com/smallbiznis/matchhub/internal/review/domain"
	"github.com/smallbiznis/matchhub/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
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

type Params struct {
	fx.In

	Engine          *gin.Engine
	Log             *zap.Logger
	ProfileSvc      profiledomain.Service
	CampaignSvc     campaigndomain.Service
	ChatSvc         chatdomain.Service
	ReviewSvc       reviewdomain.Service
	NotificationSvc notificationdomain.Service
	LedgerSvc       ledgerdomain.Service
	AuthzSvc        authorization.Service
	Sessions        *session.Store

	AuditSvc   auditdomain.Service    `optional:"true"`
	Bucket     *ratelimit.TokenBucket `optional:"true"`
	ObsMetrics *obsmetrics.Metrics    `optional:"true"`
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	profileSvc      profiledomain.Service
	campaignSvc     campaigndomain.Service
	chatSvc         chatdomain.Service
	reviewSvc       reviewdomain.Service
	notificationSvc notificationdomain.Service
	ledgerSvc       ledgerdomain.Service
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	sessions        *session.Store
	bucket          *ratelimit.TokenBucket
	obsMetrics      *obsmetrics.Metrics
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:          p.Engine,
		log:             p.Log.Named("http.server"),
		profileSvc:      p.ProfileSvc,
		campaignSvc:     p.CampaignSvc,
		chatSvc:         p.ChatSvc,
		reviewSvc:       p.ReviewSvc,
		notificationSvc: p.NotificationSvc,
		ledgerSvc:       p.LedgerSvc,
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		sessions:        p.Sessions,
		bucket:          p.Bucket,
		obsMetrics:      p.ObsMetrics,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api", s.ActorRequired())

	profiles := api.Group("/profiles")
	{
		profiles.POST("/producer", s.CreateProducerProfile)
		profiles.POST("/requester", s.CreateRequesterProfile)
	}
	api.GET("/producers/me/campaigns", s.ListMatchingCampaigns)

	campaigns := api.Group("/campaigns")
	{
		campaigns.POST("", s.BurstGuard(), s.CreateCampaign)
		campaigns.GET("/:id", s.GetCampaign)
		campaigns.GET("/:id/offers", s.ListOffers)
		campaigns.POST("/:id/offers", s.BurstGuard(), s.CreateOffer)
		campaigns.POST("/:id/cancel", s.CancelCampaign)
		campaigns.POST("/:id/start", s.StartWork)
		campaigns.POST("/:id/complete", s.CompleteCampaign)
		campaigns.GET("/:id/reviews", s.ListReviews)
		campaigns.POST("/:id/reviews", s.CreateReview)
	}
	api.POST("/offers/:id/select", s.SelectOffer)

	chats := api.Group("/chats")
	{
		chats.GET("/:id", s.GetChat)
		chats.POST("/:id/confirm", s.ConfirmChat)
		chats.POST("/:id/touch", s.TouchChat)
	}

	notifications := api.Group("/notifications")
	{
		notifications.GET("/:kind", s.PeekNotifications)
		notifications.DELETE("/:kind", s.ResetNotifications)
	}

	sessions := api.Group("/session")
	{
		sessions.GET("", s.GetSession)
		sessions.PUT("", s.PutSession)
		sessions.DELETE("", s.ClearSession)
	}

	admin := api.Group("/admin")
	{
		admin.POST("/users/:id/ban", s.RequireCapability(authorization.ObjectUser, authorization.ActionUserBan), s.BanUser)
		admin.POST("/users/:id/unban", s.RequireCapability(authorization.ObjectUser, authorization.ActionUserUnban), s.UnbanUser)
		admin.DELETE("/users/:id", s.RequireCapability(authorization.ObjectUser, authorization.ActionUserDelete), s.DeleteUser)
		admin.GET("/campaigns/:id/ledger", s.RequireCapability(authorization.ObjectLedger, authorization.ActionLedgerView), s.ListCampaignLedger)
		admin.GET("/audit-logs", s.RequireCapability(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	}
}

package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmehdipour/data-moodboard/internal/activity"
	"github.com/jmehdipour/data-moodboard/internal/ai"
	"github.com/jmehdipour/data-moodboard/internal/config"
	"github.com/jmehdipour/data-moodboard/internal/http/middleware"
	"github.com/jmehdipour/data-moodboard/internal/integrations"
	"github.com/jmehdipour/data-moodboard/internal/logger"
	"github.com/jmehdipour/data-moodboard/internal/repository"
	"github.com/jmehdipour/data-moodboard/internal/secret"
	"github.com/jmehdipour/data-moodboard/internal/service/billing"
	"github.com/jmehdipour/data-moodboard/internal/service/datasync"
	"github.com/jmehdipour/data-moodboard/internal/service/imagegen"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"
)

// Externals are the outside services the API talks to besides its databases.
type Externals struct {
	LLM           ai.LLM
	Images        imagegen.Generator
	ImageStore    imagegen.Store
	Activity      activity.Publisher // nil disables activity events
	StripeBackend stripe.Backend     // nil uses the live API
}

type Server struct {
	e            *echo.Echo
	integrations *integrations.Service
}

// NewServer wires repositories and services and registers all routes.
// clickhouseDB and rds may be nil. Metrics are registered by the caller.
func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client, ext Externals) (*Server, error) {
	// repos (MySQL)
	profilesRepo := repository.NewProfilesRepository(mysqlDB)
	dashboardsRepo := repository.NewDashboardsRepository(mysqlDB)
	apiKeysRepo := repository.NewAPIKeysRepository(mysqlDB)
	connsRepo := repository.NewConnectionsRepository(mysqlDB)
	statesRepo := repository.NewOAuthStatesRepository(mysqlDB)
	tablesRepo := repository.NewDataTablesRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	usageRepo := repository.NewImageUsageRepository(mysqlDB)
	billingEventsRepo := repository.NewBillingEventsRepository(mysqlDB)
	adminStatsRepo := repository.NewAdminStatsRepository(mysqlDB)

	// repos (ClickHouse)
	var chActivityRepo repository.CHActivityRepository
	if clickhouseDB != nil {
		chActivityRepo = repository.NewCHActivityRepository(clickhouseDB)
	}

	// services
	box, err := secret.NewBox(cfg.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	catalog, err := ai.LoadCatalog()
	if err != nil {
		return nil, fmt.Errorf("prompt catalog: %w", err)
	}

	recorder := activity.NewRecorder(ext.Activity)
	registry := integrations.NewRegistry(cfg.OAuth, cfg.HTTP.PublicURL)
	integrationsSvc := integrations.NewService(registry, statesRepo, connsRepo, box, cfg.OAuth.StateTTL)
	orchestrator := ai.NewOrchestrator(ext.LLM, catalog, tablesRepo)
	chat := ai.NewChat(ext.LLM, catalog)
	imagesSvc := imagegen.New(usageRepo, profilesRepo, ext.Images, ext.ImageStore, cfg.Images)
	syncSvc := datasync.New(mysqlDB, connsRepo, tablesRepo, outboxRepo, cfg.DataSync.Topic)
	billingSvc := billing.New(
		mysqlDB,
		profilesRepo,
		billingEventsRepo,
		billing.NewStripeGateway(ext.StripeBackend, cfg.Stripe.SecretKey, cfg.Stripe.PriceID),
		cfg.Stripe,
		cfg.HTTP.AppURL,
	)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger(), echoMid.BodyLimit("2M"))
	if cfg.HTTP.AppURL != "" {
		e.Use(echoMid.CORSWithConfig(echoMid.CORSConfig{
			AllowOrigins: []string{cfg.HTTP.AppURL},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "X-API-Key"},
		}))
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.Auth(middleware.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		JWTIssuer: cfg.Auth.JWTIssuer,
		APIKeys:   apiKeysRepo,
	})
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		Limit:          cfg.RateLimit.DefaultPerMinute,
		KeyPrefix:      "rl:user:",
		Window:         time.Minute,
		RetryAfterHint: true,
	})
	aiRL := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		Limit:          cfg.RateLimit.AIPerMinute,
		KeyPrefix:      "rl:ai:",
		Window:         time.Minute,
		RetryAfterHint: true,
	})
	profileMW := middleware.EnsureProfile(profilesRepo, func(ctx context.Context, userID string) {
		recorder.Record(ctx, userID, activity.Signup)
	})
	adminMW := middleware.AdminOnly(profilesRepo, cfg.IsAdminEmail)

	// unauthenticated: provider redirects and signed Stripe deliveries
	e.GET("/api/integrations/:provider/callback", oauthCallbackHandler(integrationsSvc, cfg.HTTP.AppURL))
	e.POST("/api/webhooks/stripe", stripeWebhookHandler(billingSvc))

	// routes
	api := e.Group("/api", authMW, profileMW, rlMW)
	api.GET("/profile", getProfileHandler(profilesRepo, recorder))

	api.GET("/dashboards", listDashboardsHandler(dashboardsRepo))
	api.POST("/dashboards", createDashboardHandler(dashboardsRepo, recorder))
	api.GET("/dashboards/:id", getDashboardHandler(dashboardsRepo))
	api.PUT("/dashboards/:id", updateDashboardHandler(dashboardsRepo, recorder))
	api.DELETE("/dashboards/:id", deleteDashboardHandler(dashboardsRepo))

	api.POST("/keys", createAPIKeyHandler(apiKeysRepo))
	api.GET("/keys", listAPIKeysHandler(apiKeysRepo))
	api.DELETE("/keys/:id", revokeAPIKeyHandler(apiKeysRepo))

	api.POST("/ai/orchestrate", orchestrateHandler(orchestrator, recorder), aiRL)
	api.POST("/chat", chatHandler(chat, recorder), aiRL)
	api.POST("/ai/images", generateImageHandler(imagesSvc, recorder), aiRL)
	api.GET("/ai/images/usage", imageUsageHandler(imagesSvc))

	api.GET("/integrations/:provider/connect", connectHandler(integrationsSvc))
	api.GET("/connections", listConnectionsHandler(connsRepo))
	api.DELETE("/connections/:id", deleteConnectionHandler(connsRepo))
	api.POST("/connections/:id/sync", syncHandler(syncSvc))

	api.GET("/data/tables", listDataTablesHandler(tablesRepo))
	api.GET("/data/tables/:id", getDataTableHandler(tablesRepo))
	api.DELETE("/data/tables/:id", deleteDataTableHandler(tablesRepo))

	api.POST("/billing/checkout", checkoutHandler(billingSvc))
	api.POST("/billing/portal", portalHandler(billingSvc))

	api.GET("/admin/metrics", adminMetricsHandler(adminStatsRepo, chActivityRepo), adminMW)

	return &Server{e: e, integrations: integrationsSvc}, nil
}

// RunHousekeeping purges expired OAuth states until ctx is done.
func (s *Server) RunHousekeeping(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.integrations.PurgeExpiredStates(ctx)
			if err != nil {
				logger.Log.Warn("purge oauth states failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Debug("purged oauth states", zap.Int64("count", n))
			}
		}
	}
}

func (s *Server) Start(addr string) error {
	logger.Log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

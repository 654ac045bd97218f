package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/neo-gateway/internal/alert"
	"github.com/vadim/neo-gateway/internal/config"
	httpcontroller "github.com/vadim/neo-gateway/internal/controller/http"
	"github.com/vadim/neo-gateway/internal/database"
	actiondao "github.com/vadim/neo-gateway/internal/domain/action/dao"
	"github.com/vadim/neo-gateway/internal/domain/action/dispatcher"
	catalogdao "github.com/vadim/neo-gateway/internal/domain/catalog/dao"
	catalogservice "github.com/vadim/neo-gateway/internal/domain/catalog/service"
	"github.com/vadim/neo-gateway/internal/domain/channel/outbound"
	conversationdao "github.com/vadim/neo-gateway/internal/domain/conversation/dao"
	conversationservice "github.com/vadim/neo-gateway/internal/domain/conversation/service"
	"github.com/vadim/neo-gateway/internal/domain/gateway"
	"github.com/vadim/neo-gateway/internal/domain/monitoring"
	monitoringscheduler "github.com/vadim/neo-gateway/internal/domain/monitoring/scheduler"
	"github.com/vadim/neo-gateway/internal/domain/reply/orchestrator"
	tenantdao "github.com/vadim/neo-gateway/internal/domain/tenant/dao"
	"github.com/vadim/neo-gateway/internal/domain/tenant/resolver"
	tenantservice "github.com/vadim/neo-gateway/internal/domain/tenant/service"
	"github.com/vadim/neo-gateway/internal/httpx/upstream/completion"
	"github.com/vadim/neo-gateway/internal/httpx/upstream/meta"
	"github.com/vadim/neo-gateway/internal/storage"
)

// App is the main application container
type App struct {
	cfg        config.Config
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger

	pool     *pgxpool.Pool
	broker   *alert.AMQPNotifier
	notifier alert.Notifier

	// Domain services
	tenants       *tenantservice.Service
	conversations *conversationservice.Service
	catalog       *catalogservice.Service
	invocations   *actiondao.InvocationPostgres
	gateway       *gateway.Gateway

	// Scheduler for the monitoring digest
	scheduler *monitoringscheduler.Scheduler
}

// NewApp creates and initializes the application
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	// Initialize router with middleware
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Timeout(30 * time.Second))

	app := &App{
		cfg:    cfg,
		router: r,
		logger: logger,
	}

	// Initialize infrastructure
	if err := app.initInfrastructure(ctx); err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("initializing infrastructure: %w", err)
	}

	// Initialize domain layers
	if err := app.initDomains(ctx); err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("initializing domains: %w", err)
	}

	// Register routes
	app.registerRoutes()

	// Initialize HTTP server
	app.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// initInfrastructure connects to postgres, applies migrations and sets up alerting
func (a *App) initInfrastructure(ctx context.Context) error {
	if a.cfg.Database.AutoMigrate {
		migrator, err := database.NewMigrator(a.cfg.Database.PostgresDSN)
		if err != nil {
			return err
		}
		err = migrator.Up()
		migrator.Close()
		if err != nil {
			return err
		}
		a.logger.Info("database migrations applied")
	}

	pool, err := database.NewPostgresPool(ctx, a.cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	notifiers := alert.Fanout{alert.NewLogNotifier(a.logger)}
	if a.cfg.Broker.URL != "" {
		broker, err := alert.NewAMQPNotifier(alert.AMQPConfig{
			URL:        a.cfg.Broker.URL,
			Exchange:   a.cfg.Broker.Exchange,
			RoutingKey: a.cfg.Broker.RoutingKey,
			Producer:   a.cfg.Broker.Producer,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("connecting to broker: %w", err)
		}
		a.broker = broker
		notifiers = append(notifiers, broker)
	}
	a.notifier = notifiers

	return nil
}

// initDomains initializes domain layers (DAO, Service, Gateway)
func (a *App) initDomains(ctx context.Context) error {
	// DAOs
	tenantsDAO := tenantdao.NewTenantPostgres(a.pool)
	accountsDAO := tenantdao.NewChannelAccountPostgres(a.pool)
	unattributedDAO := tenantdao.NewUnattributedPostgres(a.pool)
	auditDAO := tenantdao.NewAuditPostgres(a.pool)
	conversationsDAO := conversationdao.NewConversationPostgres(a.pool)
	messagesDAO := conversationdao.NewMessagePostgres(a.pool)
	a.invocations = actiondao.NewInvocationPostgres(a.pool)

	// Tenancy
	tenantResolver := resolver.New(accountsDAO, unattributedDAO, a.notifier, a.cfg.Gateway.ResolverCacheTTL, a.logger)
	a.tenants = tenantservice.New(tenantsDAO, accountsDAO, unattributedDAO, auditDAO, tenantResolver)

	// Media library storage is optional
	var objects catalogservice.ObjectStore
	if a.cfg.S3.Enabled {
		s3Storage, err := storage.NewS3Storage(storage.S3Config{
			Endpoint:        a.cfg.S3.Endpoint,
			AccessKeyID:     a.cfg.S3.AccessKeyID,
			SecretAccessKey: a.cfg.S3.SecretAccessKey,
			Bucket:          a.cfg.S3.Bucket,
			Region:          a.cfg.S3.Region,
			PublicURL:       a.cfg.S3.PublicURL,
		})
		if err != nil {
			return fmt.Errorf("initializing s3 storage: %w", err)
		}
		objects = s3Storage
	}

	a.conversations = conversationservice.New(conversationsDAO, messagesDAO)
	a.catalog = catalogservice.New(
		catalogdao.NewCatalogPostgres(a.pool),
		catalogdao.NewCartPostgres(a.pool),
		catalogdao.NewMediaPostgres(a.pool),
		objects,
	)

	// Upstream clients
	metaClient := meta.New(
		meta.WithBaseURL(a.cfg.Meta.BaseURL),
		meta.WithAPIVersion(a.cfg.Meta.APIVersion),
	)
	completionClient := completion.New(
		a.cfg.Completion.APIKey,
		completion.WithBaseURL(a.cfg.Completion.BaseURL),
		completion.WithModel(a.cfg.Completion.Model),
		completion.WithMaxTokens(a.cfg.Completion.MaxTokens),
		completion.WithTemperature(a.cfg.Completion.Temperature),
	)

	// Pipeline
	replier := orchestrator.New(
		&completionAdapter{client: completionClient},
		a.conversations,
		a.catalog,
		orchestrator.Config{
			ContextMessages: a.cfg.Gateway.ContextMessages,
			CatalogItems:    a.cfg.Gateway.CatalogItems,
			Timeout:         a.cfg.Completion.Timeout,
			RetryDelay:      a.cfg.Completion.RetryDelay,
		},
		a.logger,
	)
	actions := dispatcher.New(a.invocations, a.catalog, a.logger)
	deliverer := outbound.New(metaClient, a.notifier, outbound.Policy{
		Attempts: a.cfg.Gateway.DeliveryAttempts,
		Backoff:  a.cfg.Gateway.DeliveryBackoff,
	}, a.logger)

	a.gateway = gateway.New(tenantResolver, a.conversations, replier, actions, deliverer, gateway.Config{
		PipelineTimeout: a.cfg.Gateway.PipelineTimeout,
		FinishTimeout:   a.cfg.Gateway.FinishTimeout,
		FallbackReply:   a.cfg.Gateway.FallbackReply,
	}, a.logger)

	// Monitoring digest
	if a.cfg.Scheduler.Enabled {
		digest := monitoring.NewDigest(messagesDAO, unattributedDAO, a.invocations, a.notifier, a.logger)
		sched, err := monitoringscheduler.New(digest, a.cfg.Scheduler.Schedule, a.logger)
		if err != nil {
			return fmt.Errorf("initializing scheduler: %w", err)
		}
		a.scheduler = sched
	}

	return nil
}

// registerRoutes registers all HTTP routes
func (a *App) registerRoutes() {
	// Health check
	a.router.Get("/healthz", a.healthHandler)
	a.router.Get("/readyz", a.readyHandler)

	// Swagger UI documentation
	swaggerHandler := httpcontroller.NewSwaggerHandler("Neo-Gateway API", OpenAPISpec)
	swaggerHandler.RegisterRoutes(a.router)

	// Provider webhooks, authenticated by payload signature
	webhookHandler := httpcontroller.NewWebhookHandler(a.gateway, httpcontroller.WebhookConfig{
		AppSecret:   a.cfg.Meta.AppSecret,
		VerifyToken: a.cfg.Meta.VerifyToken,
		AckWindow:   a.cfg.Gateway.AckWindow,
	}, a.logger)
	webhookHandler.RegisterRoutes(a.router)

	if a.cfg.Admin.Token == "" {
		a.logger.Warn("ADMIN_TOKEN is empty, admin and read APIs reject every request")
	}

	// API v1
	a.router.Route("/api/v1", func(r chi.Router) {
		r.Use(httpcontroller.RequireAdminToken(a.cfg.Admin.Token))

		r.Route("/admin", func(r chi.Router) {
			httpcontroller.NewAdminHandler(a.tenants).RegisterRoutes(r)
			httpcontroller.NewCatalogHandler(a.catalog).RegisterRoutes(r)
			httpcontroller.NewMediaHandler(a.catalog).RegisterRoutes(r)
		})

		httpcontroller.NewConversationHandler(a.conversations, a.invocations, a.catalog).RegisterRoutes(r)
	})
}

// healthHandler handles health check requests
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readyHandler reports ready once the database answers
func (a *App) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.pool.Ping(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Run starts the application and blocks until shutdown signal
func (a *App) Run(ctx context.Context) error {
	// Start scheduler if enabled
	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	// Channel to receive errors from server
	errCh := make(chan error, 1)

	// Start HTTP server in goroutine
	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.Server.Address())
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		a.logger.Info("context cancelled")
	}

	// Graceful shutdown
	return a.Shutdown(context.Background())
}

// Shutdown stops accepting webhooks, drains in-flight pipelines and closes connections
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	// Stop scheduler
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	// Pipelines may outlive the request that submitted them
	drainCtx, cancelDrain := context.WithTimeout(ctx, a.cfg.Gateway.PipelineTimeout+a.cfg.Gateway.FinishTimeout)
	defer cancelDrain()

	if err := a.gateway.Shutdown(drainCtx); err != nil {
		a.logger.Error("pipelines did not drain", "error", err)
	}

	a.closeInfrastructure()

	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warn("closing broker connection", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// completionAdapter adapts completion.Client to orchestrator.Completer
type completionAdapter struct {
	client *completion.Client
}

func (c *completionAdapter) Complete(ctx context.Context, p orchestrator.Prompt) (string, error) {
	messages := make([]completion.Message, 0, len(p.Turns)+1)
	if p.System != "" {
		messages = append(messages, completion.Message{Role: completion.RoleSystem, Content: p.System})
	}
	for _, t := range p.Turns {
		role := completion.RoleUser
		if t.Speaker == orchestrator.SpeakerBusiness {
			role = completion.RoleAssistant
		}
		messages = append(messages, completion.Message{Role: role, Content: t.Text})
	}

	out, err := c.client.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

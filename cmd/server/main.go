package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hearthside/cms/internal"
	"github.com/hearthside/cms/internal/billing"
	"github.com/hearthside/cms/internal/events"
	"github.com/hearthside/cms/internal/handler/api"
	"github.com/hearthside/cms/internal/handler/webhook"
	"github.com/hearthside/cms/internal/middleware"
	"github.com/hearthside/cms/internal/postgres"
	"github.com/hearthside/cms/internal/router"
	"github.com/hearthside/cms/internal/routes"
	"github.com/hearthside/cms/internal/service"
	"github.com/hearthside/cms/internal/telemetry"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	userStore := postgres.NewUserStore(pool)

	// Initialize Stripe billing provider
	logger.Info("Initializing Stripe billing provider...")
	stripeConfig := billing.StripeConfig{
		APIKey:        cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}
	billingProvider, err := billing.NewStripeProvider(stripeConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize Stripe provider: %w", err)
	}
	logger.Info("Stripe billing provider initialized", "test_mode", stripeConfig.IsTestMode())

	// Content revalidation notifier
	var notifier events.Notifier = events.NoopNotifier{}
	if cfg.Nats.URL != "" {
		natsNotifier, err := events.NewNatsNotifier(cfg.Nats.URL, cfg.Nats.Subject, logger)
		if err != nil {
			return fmt.Errorf("failed to connect notifier: %w", err)
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
		logger.Info("Revalidation notifier connected", "subject", cfg.Nats.Subject)
	} else {
		logger.Warn("NATS_URL not set, billing change notifications disabled")
	}

	// Metrics
	httpMetrics := middleware.NewMetrics("hearthside")
	billingMetrics := telemetry.NewBillingMetrics("hearthside")

	// Initialize services
	linker := service.NewCustomerLinker(userStore, billingProvider, billingMetrics, cfg.ProviderTimeout, logger)
	checkoutService := service.NewCheckoutService(linker, billingProvider, billingMetrics, service.CheckoutConfig{
		TierPrices:      cfg.TierPrices(),
		PublicSiteURL:   cfg.PublicSiteURL,
		ProviderTimeout: cfg.ProviderTimeout,
	}, logger)
	portalService := service.NewPortalService(billingProvider, billingMetrics, service.PortalConfig{
		PublicSiteURL:   cfg.PublicSiteURL,
		ProviderTimeout: cfg.ProviderTimeout,
	}, logger)
	syncService := service.NewBillingSyncService(userStore, notifier, billingMetrics, logger)

	// Build route dependencies
	apiDeps := routes.APIDeps{
		BillingHandler: api.NewBillingHandler(checkoutService, portalService, logger),
	}

	stripeWebhookHandler := webhook.NewStripeHandler(billingProvider, syncService, billingMetrics, webhook.StripeWebhookConfig{
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, logger)
	webhookDeps := routes.WebhookDeps{
		StripeHandler: stripeWebhookHandler.HandleWebhook,
	}

	// Create router and register routes
	r := router.New(
		router.Recovery(logger),
		middleware.RequestID,
		httpMetrics.Middleware,
		middleware.MaxBodySize(middleware.DefaultMaxBodySize),
		middleware.Timeout(middleware.DefaultTimeout),
		router.CORS([]string{cfg.PublicSiteURL}),
		middleware.WithUser(userStore),
		middleware.WithRequestLogger(logger),
		router.Logger(logger),
	)

	// Metrics endpoint (protect via firewall in production)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		httpMetrics.Handler().ServeHTTP(w, req)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	routes.RegisterAPIRoutes(r, apiDeps)
	routes.RegisterWebhookRoutes(r, webhookDeps)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting server", "address", addr, "env", cfg.Env)

	if err := http.ListenAndServe(addr, r); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

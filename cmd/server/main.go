package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mesura-app/mesura/internal"
	"github.com/mesura-app/mesura/internal/billing"
	"github.com/mesura-app/mesura/internal/domain"
	"github.com/mesura-app/mesura/internal/email"
	"github.com/mesura-app/mesura/internal/handler"
	"github.com/mesura-app/mesura/internal/jobs"
	"github.com/mesura-app/mesura/internal/middleware"
	"github.com/mesura-app/mesura/internal/repository"
	"github.com/mesura-app/mesura/internal/service"
	"github.com/mesura-app/mesura/internal/storage"
	"github.com/mesura-app/mesura/internal/worker"
)

// periodicSweepInterval is how often the trial sweep and session cleanup
// jobs are enqueued. The jobs themselves are idempotent, so overlapping
// enqueues from multiple instances are harmless.
const periodicSweepInterval = 1 * time.Hour

func run() error {
	ctx := context.Background()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	repo := repository.New(db)

	renderer, err := handler.NewRenderer(handler.RendererConfig{
		TemplatesDir: "web/templates",
		Logger:       logger,
		IsDev:        cfg.Env == "development",
	})
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	logger.Info("Templates loaded", "count", len(renderer.ListTemplates()))

	// ==========================================================================
	// Storage
	// ==========================================================================

	var store storage.Storage
	switch cfg.StorageProvider {
	case "r2":
		store, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	default:
		store, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// ==========================================================================
	// Email
	// ==========================================================================

	emailService, err := email.NewSMTPEmailService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, cfg.BaseURL, "web/templates/email", logger)
	if err != nil {
		return fmt.Errorf("email initialization failed: %w", err)
	}

	// ==========================================================================
	// Billing providers
	// ==========================================================================

	var stripeService billing.StripeService
	if cfg.StripeSecretKey != "" {
		stripeService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.StripePriceConfig{
			StartDomesticPriceID:      cfg.StripeStartDomesticPriceID,
			StartInternationalPriceID: cfg.StripeStartInternationalPriceID,
			ProDomesticPriceID:        cfg.StripeProDomesticPriceID,
			ProInternationalPriceID:   cfg.StripeProInternationalPriceID,
			DomesticCountries:         cfg.DomesticCountries,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing disabled, no STRIPE_SECRET_KEY configured")
	}

	var paystackService billing.PaystackService
	if cfg.PaystackSecretKey != "" {
		paystackService = billing.NewPaystackService(cfg.PaystackSecretKey, domain.SubscriptionTier(cfg.PaystackPlanTier))
		logger.Info("Paystack billing enabled", "plan_tier", cfg.PaystackPlanTier)
	} else {
		logger.Warn("Paystack billing disabled, no PAYSTACK_SECRET_KEY configured")
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	accountService := service.NewAccountService(repo, logger)
	quotaService := service.NewQuotaService(repo, logger)
	clientService := service.NewClientService(repo, quotaService, logger)
	orderService := service.NewOrderService(repo, quotaService, logger)
	photoService := service.NewPhotoService(repo, store, logger)
	reconcileService := service.NewReconcileService(repo, email.NewBillingNotifier(emailService), logger)

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := cfg.Env != "development"
	authMw := middleware.NewAuthMiddleware(accountService, logger, isSecure)
	csrfMw := middleware.NewCSRFMiddleware(logger, isSecure)
	authLimiter := middleware.NewAuthRateLimiter(logger)
	requestLogging := middleware.NewRequestLoggingMiddleware(logger)
	securityHeaders := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Logged in; billing and settings need this but not entitlement, so a
	// lapsed account can still reach the pages that fix its state.
	requireAccount := middleware.Stack(authMw.WithAccount, authMw.RequireAccount, csrfMw.Protect)

	// Logged in AND entitled; the protected application proper.
	requireEntitled := middleware.Stack(authMw.WithAccount, authMw.RequireAccount, authMw.RequireEntitlement, csrfMw.Protect)

	// ==========================================================================
	// Handlers and routes
	// ==========================================================================

	authHandler := handler.NewAuthHandler(accountService, emailService, authLimiter, renderer, logger, isSecure)
	dashboardHandler := handler.NewDashboardHandler(orderService, clientService, photoService, renderer, logger)
	clientHandler := handler.NewClientHandler(clientService, quotaService, renderer, logger)
	orderHandler := handler.NewOrderHandler(orderService, clientService, quotaService, renderer, logger)
	photoHandler := handler.NewPhotoHandler(photoService, renderer, logger)
	billingHandler := handler.NewBillingHandler(stripeService, accountService, renderer, cfg.BaseURL, logger)
	settingsHandler := handler.NewSettingsHandler(accountService, renderer, logger)
	webhookHandler := handler.NewWebhookHandler(stripeService, paystackService, reconcileService, logger)

	mux := http.NewServeMux()

	staticFS := http.FileServer(http.Dir("web/static"))
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticFS))

	if cfg.StorageProvider == "local" {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Public routes. Webhooks authenticate via delivery signatures.
	authHandler.RegisterRoutes(mux, authLimiter.LimitLogin, authLimiter.LimitRegister)
	webhookHandler.RegisterRoutes(mux)

	// Protected routes.
	dashboardHandler.RegisterRoutes(mux, authMw.WithAccount, requireEntitled)
	clientHandler.RegisterRoutes(mux, requireEntitled)
	orderHandler.RegisterRoutes(mux, requireEntitled)
	photoHandler.RegisterRoutes(mux, requireEntitled)
	billingHandler.RegisterRoutes(mux, requireAccount)
	settingsHandler.RegisterRoutes(mux, requireAccount)

	root := securityHeaders.Handler(requestLogging.Handler(mux))

	// ==========================================================================
	// Background worker
	// ==========================================================================

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	if cfg.WorkerEnabled {
		w, err := worker.New(db, repo, worker.Config{
			Concurrency:       cfg.WorkerConcurrency,
			PollInterval:      cfg.WorkerPollInterval,
			JobTimeout:        cfg.WorkerJobTimeout,
			ShutdownTimeout:   30 * time.Second,
			StaleJobThreshold: 10 * time.Minute,
		}, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}

		w.Register(jobs.NewGenerateThumbnailHandler(repo, store, jobs.NewImagingProcessor(), logger))
		w.Register(jobs.NewExpireTrialsHandler(repo, logger))
		w.Register(jobs.NewCleanupSessionsHandler(repo, logger))

		w.Start(workerCtx)
		defer w.Stop()
		logger.Info("Worker started", "concurrency", cfg.WorkerConcurrency)

		go runPeriodicSweeps(workerCtx, repo, logger)
	}

	// ==========================================================================
	// HTTP server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	stopWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// runPeriodicSweeps enqueues the trial expiry sweep and session cleanup
// on a fixed interval. The first round runs immediately so a freshly
// deployed instance does not wait an hour to expire overdue trials.
func runPeriodicSweeps(ctx context.Context, repo *repository.Queries, logger *slog.Logger) {
	enqueue := func() {
		if _, err := worker.EnqueueExpireTrials(ctx, repo, 0); err != nil {
			logger.Error("failed to enqueue trial sweep", "error", err)
		}
		if _, err := worker.EnqueueCleanupSessions(ctx, repo); err != nil {
			logger.Error("failed to enqueue session cleanup", "error", err)
		}
	}

	enqueue()

	ticker := time.NewTicker(periodicSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enqueue()
		}
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

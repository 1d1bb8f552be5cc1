package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devro-ai/devro/internal"
	"github.com/devro-ai/devro/internal/ai"
	"github.com/devro-ai/devro/internal/ai/groq"
	"github.com/devro-ai/devro/internal/ai/mock"
	"github.com/devro-ai/devro/internal/billing"
	"github.com/devro-ai/devro/internal/domain"
	"github.com/devro-ai/devro/internal/generator"
	"github.com/devro-ai/devro/internal/handler"
	"github.com/devro-ai/devro/internal/ledger"
	"github.com/devro-ai/devro/internal/metrics"
	"github.com/devro-ai/devro/internal/middleware"
	"github.com/devro-ai/devro/internal/service"
	"github.com/devro-ai/devro/internal/storage"
	"github.com/devro-ai/devro/internal/store"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// sessionCleanupInterval is how often expired sessions are swept.
const sessionCleanupInterval = time.Hour

func run() error {
	ctx := context.Background()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// ==========================================================================
	// Store
	// ==========================================================================

	var st store.Store
	switch cfg.StoreDriver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
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
		st = store.NewPostgresStore(db)
		logger.Info("postgres store ready")

	case "mongo":
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("mongo connection failed: %w", err)
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		mongoStore := store.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo index creation failed: %w", err)
		}
		st = mongoStore
		logger.Info("mongo store ready", "database", cfg.MongoDatabase)

	case "memory":
		st = store.NewMemoryStore()
		logger.Warn("memory store in use, state is lost on restart")
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	loc, err := time.LoadLocation(cfg.QuotaTimezone)
	if err != nil {
		return fmt.Errorf("invalid quota timezone: %w", err)
	}

	policy := domain.Policy{ProUnlimited: cfg.ProUnlimited}

	ledgerSvc := ledger.New(ledger.Config{
		Accounts: st,
		Policy:   policy,
		Location: loc,
		Logger:   logger,
	})
	accountSvc := service.NewAccountService(st, policy, loc, logger)

	var provider ai.Provider
	switch cfg.AIProvider {
	case "groq":
		provider, err = groq.New(groq.Config{
			APIKey: cfg.GroqAPIKey,
			Model:  cfg.GroqModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("groq provider initialization failed: %w", err)
		}
	case "mock":
		provider = mock.New(logger)
		logger.Warn("mock AI provider in use, generated sites are canned")
	}

	var artifactStorage storage.Storage
	switch cfg.StorageProvider {
	case "r2":
		artifactStorage, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			Region:          cfg.R2Region,
		}, logger)
	case "local":
		artifactStorage, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	generatorSvc := generator.New(generator.Config{
		Provider: provider,
		Ledger:   ledgerSvc,
		Projects: st,
		Storage:  artifactStorage,
		Policy:   policy,
		Logger:   logger,
	})

	var billingSvc billing.Service
	if cfg.StripeSecretKey != "" {
		billingSvc = billing.NewStripeService(billing.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			ProPriceID:    cfg.StripeProPriceID,
		})
		logger.Info("stripe billing enabled")
	} else {
		logger.Warn("stripe billing disabled, upgrades are unavailable")
	}

	// ==========================================================================
	// HTTP layer
	// ==========================================================================

	isSecure := cfg.Env != "development"

	authMw := middleware.NewAuthMiddleware(accountSvc, logger, isSecure)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(isSecure)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	authLimiter := middleware.NewAuthRateLimiter(logger)

	authHandler := handler.NewAuthHandler(accountSvc, policy, logger, isSecure)
	profileHandler := handler.NewProfileHandler(accountSvc, ledgerSvc, policy, logger)
	generateHandler := handler.NewGenerateHandler(generatorSvc, policy, logger)
	billingHandler := handler.NewBillingHandler(billingSvc, cfg.BaseURL, logger)
	webhookHandler := handler.NewWebhookHandler(billingSvc, ledgerSvc, logger)

	public := middleware.Stack(loggingMw.Handler, securityMw.Handler, metrics.Middleware)
	authed := middleware.Stack(loggingMw.Handler, securityMw.Handler, metrics.Middleware,
		authMw.WithAccount, authMw.RequireAccount)

	mux := http.NewServeMux()

	mux.Handle("GET /health", public(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})))
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Auth (public, rate limited)
	mux.Handle("POST /api/auth/signup", public(authLimiter.LimitRegister(http.HandlerFunc(authHandler.Signup))))
	mux.Handle("POST /api/auth/login", public(authLimiter.LimitLogin(http.HandlerFunc(authHandler.Login))))
	mux.Handle("POST /api/auth/logout", public(http.HandlerFunc(authHandler.Logout)))

	// Account
	mux.Handle("GET /api/profile", authed(http.HandlerFunc(profileHandler.Get)))
	mux.Handle("PUT /api/profile", authed(http.HandlerFunc(profileHandler.Update)))

	// Generation
	mux.Handle("POST /api/generate", authed(http.HandlerFunc(generateHandler.Generate)))
	mux.Handle("GET /api/projects", authed(http.HandlerFunc(generateHandler.ListProjects)))
	mux.Handle("GET /api/projects/{id}/download", authed(http.HandlerFunc(generateHandler.Download)))

	// Billing
	mux.Handle("POST /api/billing/checkout", authed(http.HandlerFunc(billingHandler.CreateCheckout)))
	mux.Handle("POST /webhooks/stripe", public(http.HandlerFunc(webhookHandler.HandleStripeWebhook)))

	// ==========================================================================
	// Background session sweep
	// ==========================================================================

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if err := accountSvc.DeleteExpiredSessions(sweepCtx); err != nil {
					logger.Warn("session cleanup failed", "error", err)
				}
			}
		}
	}()

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

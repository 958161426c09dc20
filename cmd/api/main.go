// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/guided-resolution/internal/config"
	"github.com/capitalize-ai/guided-resolution/internal/handler"
	"github.com/capitalize-ai/guided-resolution/internal/llm"
	natsclient "github.com/capitalize-ai/guided-resolution/internal/nats"
	"github.com/capitalize-ai/guided-resolution/internal/outbox"
	"github.com/capitalize-ai/guided-resolution/internal/routing"
	"github.com/capitalize-ai/guided-resolution/internal/service"
	"github.com/capitalize-ai/guided-resolution/internal/store"
	"github.com/capitalize-ai/guided-resolution/pkg/logger"
	"github.com/capitalize-ai/guided-resolution/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, logger.WithFormat(cfg.LogFormat))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting API server")

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "guided-resolution", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Open the database
	st, err := store.Open(ctx,
		store.WithDriver(cfg.DatabaseDriver),
		store.WithDSN(cfg.DatabaseURL),
		store.WithLogger(log),
	)
	if err != nil {
		return err
	}
	defer st.Close()

	// Escalation routing policy
	router, err := routing.NewEngineFromFile(ctx, cfg.RoutingPolicyFile, cfg.EscalationFallback)
	if err != nil {
		return fmt.Errorf("failed to load escalation policy: %w", err)
	}

	// Initialize LLM client for reply drafts
	var llmClient llm.Client
	provider, err := llm.ParseProvider(cfg.DefaultLLM)
	if err != nil {
		log.Warn("unknown LLM provider, drafts fall back to templates", zap.Error(err))
	} else if key := llmKey(cfg, provider); key != "" {
		llmClient, err = llm.NewClient(provider, key)
		if err != nil {
			log.Warn("failed to create LLM client, drafts fall back to templates", zap.Error(err))
			llmClient = nil
		}
	}
	drafter := llm.NewDrafter(llmClient, cfg.LLMModel, log)

	// Initialize services
	flowSvc, err := service.NewFlowService(st, cfg.FlowCacheSize, log)
	if err != nil {
		return err
	}
	escalationSvc := service.NewEscalationService(st, router, log)
	sessionSvc := service.NewSessionService(st, flowSvc, escalationSvc, st, drafter, log)
	continuationSvc := service.NewContinuationService(st, flowSvc, nil, log)

	g, gctx := errgroup.WithContext(ctx)

	// Connect to NATS and relay the outbox
	var natsClient *natsclient.Client
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log.Named("nats"))
		if err != nil {
			return err
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}

		relay := outbox.NewRelay(st, streamManager, outbox.Config{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
		}, log)
		if err := relay.RecoverStale(ctx); err != nil {
			log.Warn("failed to requeue stale outbox messages", zap.Error(err))
		}
		g.Go(func() error {
			return relay.Run(gctx)
		})
	} else {
		log.Warn("NATS disabled, notifications stay queued in the outbox")
	}

	// Create HTTP server
	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handler.RouterConfig{
			Flows:         flowSvc,
			Sessions:      sessionSvc,
			Escalations:   escalationSvc,
			Continuations: continuationSvc,
			DB:            st,
			NATS:          natsClient,
			JWTSecret:     cfg.JWTSecret,
			RateLimit:     cfg.RateLimitRequests,
			RateWindow:    cfg.RateLimitWindow,
			DraftLimit:    cfg.DraftRateLimit,
			Logger:        log,
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	g.Go(func() error {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func llmKey(cfg *config.Config, provider llm.Provider) string {
	switch provider {
	case llm.ProviderOpenAI:
		return cfg.OpenAIAPIKey
	default:
		return cfg.AnthropicAPIKey
	}
}

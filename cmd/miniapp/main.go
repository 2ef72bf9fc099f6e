// Shop mini-app server - runs the cart and checkout flow for a chat host's
// web view and forwards placed orders to the shop backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shop-miniapp/internal/catalog"
	"shop-miniapp/internal/config"
	"shop-miniapp/internal/handler"
	"shop-miniapp/internal/host"
	"shop-miniapp/internal/middleware"
	"shop-miniapp/internal/session"
	"shop-miniapp/internal/submit"
	"shop-miniapp/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := initLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("backend", cfg.BackendBaseURL()),
		slog.Bool("browser_tls", cfg.Backend.BrowserTLS),
		slog.Int("min_contact_length", cfg.Checkout.MinContactLength),
		slog.Duration("submit_timeout", cfg.Checkout.SubmitTimeout),
	)

	// One backend client shared by catalog fetches and order submission.
	// Its own timeout sits just above the submit timeout so the flow's
	// deadline is the one that fires.
	httpClient := transport.NewClient(transport.Options{
		Timeout:    cfg.Checkout.SubmitTimeout + 5*time.Second,
		BrowserTLS: cfg.Backend.BrowserTLS,
	})

	catalogClient, err := catalog.NewClient(httpClient, cfg.BackendBaseURL(), cfg.Backend.APIKey)
	if err != nil {
		return fmt.Errorf("creating catalog client: %w", err)
	}
	cat := catalog.Load(ctx, catalogClient, logger)

	submitter, err := submit.NewClient(httpClient, cfg.BackendBaseURL(), cfg.Backend.APIKey)
	if err != nil {
		return fmt.Errorf("creating order client: %w", err)
	}

	sessions, err := session.NewManager(session.Config{
		Catalog:          cat,
		Submitter:        submitter,
		Logger:           logger,
		MinContactLength: cfg.Checkout.MinContactLength,
		SubmitTimeout:    cfg.Checkout.SubmitTimeout,
		Currency:         cfg.Checkout.Currency,
	})
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	h := handler.New(sessions, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → CORS → host identity → logging → handler
	// Recovery must be outermost to catch panics from the others.
	// Logging runs inside host identity so request logs carry the user.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.CORS(cfg.AllowedOrigins),
		host.Middleware(logger),
		middleware.Logging(logger),
	)(mux)

	// WriteTimeout must outlast a confirm, which waits for the backend.
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Checkout.SubmitTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go sweepSessions(ctx, sessions, cfg.Checkout.SessionIdleTimeout, logger)

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
			slog.Int("products", cat.Len()),
		)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests, including in-flight orders, time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// sweepSessions ends sessions idle for longer than idle until ctx is done.
func sweepSessions(ctx context.Context, sessions *session.Manager, idle time.Duration, logger *slog.Logger) {
	interval := idle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(ctx, idle); n > 0 {
				logger.Info("idle sessions ended",
					slog.Int("count", n),
					slog.Int("remaining", sessions.Len()),
				)
			}
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/exchangesim/internal/config"
	"github.com/efreitasn/exchangesim/internal/engine"
	"github.com/efreitasn/exchangesim/internal/handler"
	"github.com/efreitasn/exchangesim/internal/service"
	"github.com/efreitasn/exchangesim/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Stores and books.
	orderStore := store.NewOrderStore(logger)
	tradeStore := store.NewTradeStore(logger)
	books := engine.NewBookRegistry()

	// Trade bus and matching engine.
	bus := engine.NewTradeBus(cfg.TradeBuffer, logger)
	matcher := engine.NewMatcher(cfg.MatchInterval, books, orderStore, bus, logger)

	// Services.
	orderSvc := service.NewOrderService(orderStore, books)
	tradeSvc := service.NewTradeService(bus, tradeStore)

	// Router.
	router := handler.NewRouter(orderSvc, tradeSvc, logger)

	// Start background work with a cancellable context: the matching ticker
	// and the trade store's bus subscription.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	matcher.Start(ctx)
	storeSub := bus.Subscribe()
	go tradeStore.Run(ctx, storeSub.C)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops the matcher
	// and the trade store consumer).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	storeSub.Close()

	logger.Info("server stopped")
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/playerstats-proxy/internal/api"
	"github.com/playerstats-proxy/internal/config"
	"github.com/playerstats-proxy/internal/kafka"
	"github.com/playerstats-proxy/internal/loghandler"
	"github.com/playerstats-proxy/internal/metrics"
	"github.com/playerstats-proxy/internal/proxy"
	"github.com/playerstats-proxy/internal/storage"
	"github.com/playerstats-proxy/internal/upstream"
	"github.com/playerstats-proxy/internal/websocket"
)

func main() {
	// .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := config.Load()

	level, err := loghandler.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(loghandler.NewCompactHandler(os.Stderr, level))
	slog.SetDefault(logger)
	if err != nil {
		logger.Warn("unknown log level, using info", "tag", "main", "value", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "tag", "main", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	m := metrics.New()

	client := upstream.NewClient(upstream.NewHTTPClient(cfg.HTTPTimeout()), cfg.UpstreamBaseURL, cfg.UpstreamPlayersPath)
	store := storage.NewStore(client, storage.NewConfig(cfg.CacheTTL(), cfg.HTTPTimeout()),
		storage.WithMetrics(m),
		storage.WithLogger(logger),
	)

	// Live feed
	hub := websocket.NewHub(m, logger)
	go hub.Run(ctx)
	store.OnRefresh(hub.BroadcastRefresh)

	// Message bus, both sides optional
	producer := kafka.NewProducer(cfg.Kafka, logger)
	defer producer.Close()
	store.OnRefresh(producer.EmitSnapshotRefreshed)

	if cfg.Kafka.Enabled() {
		consumer, err := kafka.NewConsumer(cfg.Kafka, store.Invalidate, logger)
		if err != nil {
			logger.Warn("kafka consumer not available", "tag", "main", "error", err)
		} else {
			consumer.Start()
			defer consumer.Stop()
		}
	}

	forwarder := proxy.NewForwarder(upstream.NewStreamingClient(cfg.HTTPTimeout()), cfg.UpstreamBaseURL, m, logger)

	handlers := api.NewHandlers(store, api.Limits{
		MaxLimit:       cfg.MaxLimit,
		MaxBestResults: cfg.MaxBestResults,
	}, logger)

	router := api.NewRouter(api.RouterDeps{
		Handlers:    handlers,
		Proxy:       forwarder,
		Live:        websocket.NewHandler(hub),
		Metrics:     m.Handler(),
		CORSOrigins: cfg.CORSOrigins,
	})

	// No WriteTimeout: proxied bodies and the live feed stream for as long as
	// the upstream or the client keeps them open.
	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "tag", "main", "addr", server.Addr, "upstream", cfg.UpstreamBaseURL, "ttl", cfg.CacheTTL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "tag", "main", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server", "tag", "main")

	// Shutdown does not track hijacked connections; stopping the hub closes them.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "tag", "main", "error", err)
		return
	}

	logger.Info("server exited properly", "tag", "main")
}

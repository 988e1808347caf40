package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"hls-relay/internal/platform/config"
	"hls-relay/internal/platform/logger"
	"hls-relay/internal/platform/metrics"
	"hls-relay/internal/relay"
	"hls-relay/internal/upstream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile, port string

	cmd := &cobra.Command{
		Use:          "hls-relay",
		Short:        "Relay HLS playlists and media through this server",
		Long:         "Fetch HLS playlists, segments and keys on behalf of clients, rewriting manifests so follow-up requests come back through the relay.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = config.LoadEnv(envFile)
			cfg := config.Load()
			if port != "" {
				cfg.Port = port
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func run(cfg config.Relay) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	mode, err := relay.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}

	var store relay.Store
	if mode == relay.ModeToken {
		s, closeStore, err := newStore(cfg)
		if err != nil {
			log.Error("indirection store unavailable", slog.String("backend", cfg.StoreBackend), slog.String("error", err.Error()))
			return err
		}
		defer closeStore()
		store = s
	}

	fetcher := upstream.New(upstream.Config{
		Timeout:      cfg.UpstreamTimeout,
		MaxBodyBytes: cfg.UpstreamMaxBytes,
		UserAgent:    cfg.UpstreamUserAgent,
	})
	defer fetcher.Close()

	emit, err := relay.NewEmitter(mode, relay.NewURLBuilder(cfg.PublicBaseURL), store)
	if err != nil {
		return err
	}

	met := metrics.New()
	svc := relay.NewService(fetcher, store, emit, log, met)
	h := relay.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(relay.CORS)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics", "/health"))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("OK"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			if store != nil {
				met.SetStoreEntries(store.Len())
			}
		}).ServeHTTP(w, r)
	})
	r.Group(func(r chi.Router) {
		if cfg.RateLimitRPM > 0 {
			r.Use(rateLimit(cfg.RateLimitRPM))
		}
		h.Mount(r)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(r, "hls-relay"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"mode", string(mode),
		"store_backend", cfg.StoreBackend,
		"store_ttl", cfg.StoreTTL.String(),
		"store_capacity", cfg.StoreCapacity,
		"upstream_timeout", cfg.UpstreamTimeout.String(),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server error", "error", err)
			return err
		}
		return nil
	case <-sigCh:
	}

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}

// newStore builds the configured indirection store and its cleanup func.
func newStore(cfg config.Relay) (relay.Store, func(), error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return relay.NewMemoryStore(cfg.StoreCapacity, cfg.StoreTTL), func() {}, nil
	case "redis":
		s, err := relay.NewRedisStore(relay.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Timeout:  cfg.RedisTimeout,
		}, cfg.StoreCapacity, cfg.StoreTTL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// rateLimit limits relay routes per client IP with a sliding one-minute window.
func rateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(60))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited","details":"too many requests"}`))
		}),
	)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"subscriber/internal/api"
	"subscriber/internal/auth"
	"subscriber/internal/config"
	"subscriber/internal/logger"
	"subscriber/internal/models"
	"subscriber/internal/notify"
	"subscriber/internal/observability"
	"subscriber/internal/ratelimit"
	"subscriber/internal/service"
	"subscriber/internal/storage"
	"subscriber/internal/version"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *models.Config) error {
	ver := version.GetInfo()

	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	otelProvider, err := observability.Setup(ctx, cfg, ver)
	if err != nil {
		return fmt.Errorf("initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	storageInstance, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer storageInstance.Close()

	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			return fmt.Errorf("create instrumented storage: %w", err)
		}
		activeStorage = instrumented
	}

	var tokens *auth.TokenManager
	if cfg.Security.EnableAuth {
		tokens, err = auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTIssuer,
			cfg.Security.TokenTTL, models.MinJWTSecretLength)
		if err != nil {
			return fmt.Errorf("initialize token manager: %w", err)
		}
	}

	sender, err := notify.NewSender(cfg.Email)
	if err != nil {
		return fmt.Errorf("initialize email sender: %w", err)
	}

	var subOpts []service.SubscriptionOption
	if cfg.Metrics.Enabled {
		subMetrics, err := observability.NewSubscriptionMetrics(otel.GetMeterProvider())
		if err != nil {
			return fmt.Errorf("create subscription metrics: %w", err)
		}
		subOpts = append(subOpts, service.WithSubscriptionEvents(subMetrics))
	}

	handlers := newHandlers(activeStorage, tokens, sender, cfg, ver, subOpts...)

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	if tokens != nil {
		routeOpts = append(routeOpts, api.WithTokenValidator(tokens))
	}

	if cfg.RateLimit.Enabled {
		var reg prometheus.Registerer
		if cfg.Metrics.Enabled {
			reg = prometheus.DefaultRegisterer
		}
		mw, cleanup, err := buildRateLimiter(ctx, cfg, tokens, reg)
		if err != nil {
			return fmt.Errorf("initialize rate limiter: %w", err)
		}
		defer cleanup()
		routeOpts = append(routeOpts, api.WithRateLimiter(mw))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "version", ver.Version, "tls", cfg.Server.TLSEnabled)
		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		slog.Info("Shutting down server", "signal", sig.String())
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down server", "reason", ctx.Err())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	return runErr
}

// newHandlers builds the services and HTTP handlers over store. tokens may be
// nil, in which case login is reported as not enabled.
func newHandlers(store storage.Storage, tokens *auth.TokenManager, sender notify.Sender, cfg *models.Config, ver version.Info, subOpts ...service.SubscriptionOption) *api.Handlers {
	var issuer service.TokenIssuer
	if tokens != nil {
		issuer = tokens
	}
	return api.NewHandlers(
		service.NewUserService(store, issuer),
		service.NewSubscriptionService(store, sender, cfg.Server.BaseURL, subOpts...),
		api.WithStorage(store),
		api.WithVersion(ver),
		api.WithPublicURL(cfg.Server.BaseURL),
	)
}

// buildRateLimiter creates the anonymous and authenticated limiters for the
// configured backend and returns the middleware plus a cleanup func. Metrics
// are registered on reg when it is non-nil.
func buildRateLimiter(ctx context.Context, cfg *models.Config, tokens *auth.TokenManager, reg prometheus.Registerer) (func(http.Handler) http.Handler, func(), error) {
	rl := cfg.RateLimit
	authMax := rl.AuthenticatedMaxRequests
	if authMax == 0 {
		authMax = rl.MaxRequests
	}

	var (
		anonymous, authenticated ratelimit.Limiter
		tracked                  func() int
		cleanup                  func()
	)

	switch rl.Backend {
	case models.RateLimitBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     rl.Redis.Addr,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
			PoolSize: rl.Redis.PoolSize,
		})
		anon, err := ratelimit.NewRedisLimiter(client, rl.MaxRequests, rl.Window,
			ratelimit.WithKeyPrefix(rl.Redis.KeyPrefix+"anon:"), ratelimit.WithFailOpen(rl.FailOpen))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		authed, err := ratelimit.NewRedisLimiter(client, authMax, rl.Window,
			ratelimit.WithKeyPrefix(rl.Redis.KeyPrefix+"user:"), ratelimit.WithFailOpen(rl.FailOpen))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := anon.Ping(pingCtx); err != nil {
			if !rl.FailOpen {
				client.Close()
				return nil, nil, err
			}
			slog.Warn("Redis unreachable at startup, admitting requests until it recovers", "error", err)
		}
		anonymous, authenticated = anon, authed
		// both limiters share the client
		cleanup = anon.Close

	default:
		anon, err := ratelimit.NewFixedWindow(rl.MaxRequests, rl.Window,
			ratelimit.WithSweepInterval(rl.SweepInterval), ratelimit.WithMaxKeys(rl.MaxKeys))
		if err != nil {
			return nil, nil, err
		}
		authed, err := ratelimit.NewFixedWindow(authMax, rl.Window,
			ratelimit.WithSweepInterval(rl.SweepInterval), ratelimit.WithMaxKeys(rl.MaxKeys))
		if err != nil {
			anon.Close()
			return nil, nil, err
		}
		anonymous, authenticated = anon, authed
		tracked = func() int { return anon.Len() + authed.Len() }
		cleanup = func() {
			anon.Close()
			authed.Close()
		}
	}

	var tv auth.TokenValidator
	if tokens != nil {
		tv = tokens
	}
	opts := []ratelimit.MiddlewareOption{
		ratelimit.WithKeyFunc(api.RateLimitKeyFunc(tv, ratelimit.ClientIPResolver{TrustedHops: rl.TrustedHops})),
	}
	if reg != nil {
		metrics, err := ratelimit.NewMetrics(reg, tracked)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("register rate limit metrics: %w", err)
		}
		opts = append(opts, ratelimit.WithMetrics(metrics))
	}

	slog.Info("Rate limiting enabled",
		"backend", rl.Backend,
		"max_requests", rl.MaxRequests,
		"authenticated_max_requests", authMax,
		"window", rl.Window.String(),
	)
	return ratelimit.Middleware(anonymous, authenticated, opts...), cleanup, nil
}

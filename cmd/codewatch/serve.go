// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/codewatch/codewatch/internal/auth"
	authpg "github.com/codewatch/codewatch/internal/auth/postgres"
	"github.com/codewatch/codewatch/internal/config"
	"github.com/codewatch/codewatch/internal/httpapi"
	"github.com/codewatch/codewatch/internal/logging"
	"github.com/codewatch/codewatch/internal/monitor"
	"github.com/codewatch/codewatch/internal/observability"
	"github.com/codewatch/codewatch/internal/store"
	"github.com/codewatch/codewatch/internal/stream"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CodeWatch server",
		Long: `Start the API, stream gateway, and observability servers. Settings
come from the config file, overridden by any flags set here.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	// Flag names mirror config keys so posflag can layer them directly.
	flags := cmd.Flags()
	flags.String("server.http_addr", "", "API listen address")
	flags.String("server.stream_addr", "", "stream gateway listen address")
	flags.String("server.metrics_addr", "", "metrics/health listen address (empty = disabled)")
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.String("logging.format", "", "log format (json or text)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(resolveConfigFile(), cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Setup("codewatch", version, cfg.Logging.Format, nil)
	slog.SetDefault(logger)

	slog.Info("starting codewatch",
		"http_addr", cfg.Server.HTTPAddr,
		"stream_addr", cfg.Server.StreamAddr,
		"log_format", cfg.Logging.Format,
	)

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("connected to database")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Observability server first so the limiter can register its gauge.
	var (
		obsServer *observability.Server
		metrics   *observability.Metrics
		limiter   *auth.SlidingWindowLimiter
	)
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		})
		metrics = obsServer.Metrics()
		limiter = auth.NewSlidingWindowLimiterWithRegistry(auth.LimiterConfig{}, obsServer.Registry())
	} else {
		limiter = auth.NewSlidingWindowLimiter(auth.LimiterConfig{})
	}
	defer limiter.Close()

	codec, err := auth.NewTokenCodec([]byte(cfg.Auth.SigningSecret), cfg.Auth.SigningAlgorithm)
	if err != nil {
		return err
	}

	service, err := auth.NewServiceWithLogger(
		authpg.NewCredentialRepository(pool),
		auth.NewArgon2idHasher(),
		limiter,
		codec,
		auth.ServiceConfig{
			TokenTTL:    cfg.Auth.TokenLifetime(),
			HashWorkers: cfg.Auth.HashWorkers,
			Limits:      rateLimitsFromConfig(cfg.RateLimit),
		},
		logger,
	)
	if err != nil {
		return err
	}

	events := monitor.NewPostgresEventStore(pool)

	if obsServer != nil {
		obsErrChan, obsErr := obsServer.Start()
		if obsErr != nil {
			return obsErr
		}
		defer stopServer(obsServer.Stop, "observability")
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	apiServer := httpapi.NewServer(cfg.Server.HTTPAddr, service, events, metrics, logger)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		return err
	}
	defer stopServer(apiServer.Stop, "api")
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	streamServer := stream.NewServer(cfg.Server.StreamAddr, service, events, metrics, logger)
	streamErrChan := make(chan error, 1)
	go func() {
		if runErr := streamServer.Run(ctx); runErr != nil {
			streamErrChan <- runErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("CodeWatch server started")
	slog.Info("codewatch ready",
		"http_addr", apiServer.Addr(),
		"stream_addr", cfg.Server.StreamAddr,
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case err := <-streamErrChan:
		return oops.With("server", "stream").Wrap(err)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	cancel()
	return nil
}

// rateLimitsFromConfig converts config minutes into limiter policies.
func rateLimitsFromConfig(cfg config.RateLimitConfig) auth.RateLimits {
	return auth.RateLimits{
		RegisterPerIP: auth.RateLimitPolicy{
			Max:    cfg.RegisterIPMax,
			Window: time.Duration(cfg.RegisterIPWindowMinutes) * time.Minute,
		},
		LoginPerIP: auth.RateLimitPolicy{
			Max:    cfg.LoginIPMax,
			Window: time.Duration(cfg.LoginIPWindowMinutes) * time.Minute,
		},
		LoginPerUser: auth.RateLimitPolicy{
			Max:    cfg.LoginUserMax,
			Window: time.Duration(cfg.LoginUserWindowMinutes) * time.Minute,
		},
	}
}

// stopServer stops a server with a bounded timeout, logging failures.
func stopServer(stop func(context.Context) error, name string) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(shutdownCtx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors monitors a server's error channel and cancels the
// context on error so one server failure triggers a full graceful
// shutdown. It exits when an error is received, the channel is closed,
// or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}

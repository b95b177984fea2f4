package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashtrail-project/hashtrail/internal/chain"
	"github.com/hashtrail-project/hashtrail/internal/ratelimit"
	"github.com/hashtrail-project/hashtrail/internal/server"
	"github.com/hashtrail-project/hashtrail/pkg/config"
	"github.com/hashtrail-project/hashtrail/pkg/logging"
	"github.com/hashtrail-project/hashtrail/pkg/metrics"
	"github.com/hashtrail-project/hashtrail/pkg/tracing"
	"github.com/hashtrail-project/hashtrail/pkg/webhook"
)

func newServeCmd() *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the hashtrail HTTP API.

The chain lives in memory and starts from the genesis block on every start.
Configuration comes from --config, then the PORT, MAX_FILE_SIZE, RATE_LIMIT,
ENVIRONMENT, LOG_LEVEL, REDIS_ADDR and OTEL_EXPORTER_OTLP_ENDPOINT variables,
then the flags below. SIGINT or SIGTERM shuts the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

// runServer wires the recorder, limiter and observability stack and serves
// until ctx is done.
func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		Format:     logging.Format(cfg.Logging.Format),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	logging.SetGlobal(logger)
	defer logger.Sync()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, Version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.ErrorErr("tracing shutdown failed", err)
		}
	}()

	reg := metrics.NewRegistry()
	hooks := webhook.NewClient(&cfg.Webhooks)
	defer hooks.Close()

	rec := chain.NewRecorder(
		chain.WithFactory(chain.NewFactory(chain.WithTolerance(cfg.Limits.FutureTolerance))),
		chain.WithMetrics(reg),
		chain.WithWebhooks(hooks),
		chain.WithLogger(logger.WithFields(map[string]any{"component": "chain"})),
	)

	limiter, closeLimiter, err := ratelimit.FromConfig(cfg.RateLimit)
	if err != nil {
		return err
	}
	defer closeLimiter()

	srv := server.New(cfg, rec,
		server.WithLimiter(limiter),
		server.WithMetrics(reg),
		server.WithLogger(logger.WithFields(map[string]any{"component": "server"})),
		server.WithVersion(Version),
	)

	if cfg.Monitor.Enabled {
		go chain.NewMonitor(rec, cfg.Monitor.Interval).Run(ctx)
	}

	logger.Info("starting hashtrail", map[string]any{
		"version":     Version,
		"environment": cfg.Environment,
		"addr":        cfg.Server.Addr(),
		"rate_limit":  cfg.RateLimit.PerMinute,
		"backend":     cfg.RateLimit.Backend,
	})
	return srv.Run(ctx)
}

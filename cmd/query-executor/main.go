// Command query-executor serves the query plan executor over HTTP.
//
// Exit codes:
//
//	0  clean shutdown
//	1  startup failure
//	2  graceful shutdown timed out and remaining work was abandoned
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/adapter/sqladapter"
	"github.com/kroma-labs/sentinel-executor/api"
	"github.com/kroma-labs/sentinel-executor/executor"
	"github.com/kroma-labs/sentinel-executor/httpserver"
	"github.com/kroma-labs/sentinel-executor/internal/config"
	"github.com/kroma-labs/sentinel-executor/internal/telemetry"
	"github.com/kroma-labs/sentinel-executor/interpreter"
	"github.com/kroma-labs/sentinel-executor/logging"
	"github.com/kroma-labs/sentinel-executor/tracing"
	"github.com/kroma-labs/sentinel-executor/txmanager"
)

const (
	serviceName = "query-executor"

	exitStartupFailure = 1
	exitForcedShutdown = 2

	healthCheckTimeout = 2 * time.Second
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	var exitCode int

	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Execute query plans against a SQL database over HTTP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), nil)
			if err != nil {
				exitCode = exitStartupFailure
				return err
			}
			exitCode, err = run(cmd.Context(), cfg)
			return err
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if exitCode == 0 {
			// flag parsing failed before RunE
			exitCode = exitStartupFailure
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, adapter.SanitizeError(err))
	}
	return exitCode
}

// run blocks until the server stops and returns the process exit code.
func run(ctx context.Context, cfg config.Config) (int, error) {
	lifecycle := newLifecycleLogger(cfg)

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return exitStartupFailure, err
	}

	factory, err := adapter.CreateAdapter(cfg.DatabaseURL, sqladapter.ProtocolTable(
		sqladapter.WithTracerProvider(tel.TracerProvider),
		sqladapter.WithMeterProvider(tel.MeterProvider),
	))
	if err != nil {
		_ = tel.Shutdown(ctx)
		return exitStartupFailure, err
	}
	db, err := factory.Connect(ctx)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return exitStartupFailure, fmt.Errorf("failed to connect to %s database: %w", factory.Provider(), err)
	}

	app := executor.New(
		db,
		txmanager.New(db),
		interpreter.NewBasic(),
		tracing.NewHandlerFromProvider(tel.TracerProvider),
	)

	health := httpserver.NewHealthHandler(healthCheckTimeout)
	health.AddCheck("database", app.Ping)

	metrics, err := httpserver.NewMetrics(httpserver.MetricsConfig{
		MeterProvider: tel.MeterProvider,
		Route:         api.RoutePattern,
	})
	if err != nil {
		_ = app.Shutdown(ctx)
		_ = tel.Shutdown(ctx)
		return exitStartupFailure, err
	}

	router := api.NewRouter(app, api.Options{
		Limits: cfg.Limits,
		Logger: logging.New(logging.Config{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		}),
		Health:         health,
		Metrics:        metrics.WithServiceName(serviceName),
		MetricsHandler: httpserver.PrometheusHandler(tel.Registry),
	})

	serverCfg := httpserver.DefaultConfig()
	serverCfg.Addr = cfg.Addr()
	serverCfg.ShutdownTimeout = cfg.GracefulShutdownTimeout

	opts := []httpserver.Option{
		httpserver.WithConfig(serverCfg),
		httpserver.WithServiceName(serviceName),
		httpserver.WithLogger(lifecycle),
		httpserver.WithHandler(router),
		httpserver.WithTracing(httpserver.TracingConfig{
			TracerProvider: tel.TracerProvider,
			SkipPaths:      []string{"/health", "/metrics"},
		}),
		httpserver.WithShutdownHook(app.Shutdown),
		httpserver.WithShutdownHook(tel.Shutdown),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, httpserver.WithRateLimit(httpserver.RateLimitConfig{
			Limit: rate.Limit(cfg.RateLimit),
		}))
	}

	server := httpserver.New(opts...)

	lifecycle.Info().
		Str("provider", string(factory.Provider())).
		Str("version", version).
		Msg("query executor starting")

	err = server.ListenAndServe(ctx)
	switch {
	case errors.Is(err, httpserver.ErrForcedShutdown):
		return exitForcedShutdown, err
	case err != nil:
		return exitStartupFailure, err
	}
	return 0, nil
}

// newLifecycleLogger returns the zerolog logger for process events, in the
// same format and at the same level as the request logs.
func newLifecycleLogger(cfg config.Config) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.LogFormat == logging.FormatJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger = logger.With().Timestamp().Str("service", serviceName).Logger()

	switch cfg.LogLevel {
	case logging.LevelDebug, logging.LevelQuery:
		return logger.Level(zerolog.DebugLevel)
	case logging.LevelWarn:
		return logger.Level(zerolog.WarnLevel)
	case logging.LevelError:
		return logger.Level(zerolog.ErrorLevel)
	case logging.LevelOff:
		// Disabled would make httpserver fall back to its stdout logger.
		return logger.Level(zerolog.PanicLevel)
	default:
		return logger.Level(zerolog.InfoLevel)
	}
}

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

var (
	// ErrNoHandler is returned when the server is started without a handler.
	ErrNoHandler = errors.New("httpserver: handler is required (use WithHandler)")

	// ErrForcedShutdown is returned when the graceful shutdown did not
	// complete within ShutdownTimeout and remaining work was abandoned.
	ErrForcedShutdown = errors.New("httpserver: graceful shutdown timed out")
)

// Server wraps http.Server with graceful shutdown, signal handling,
// shutdown hooks and lifecycle logging.
//
//	server := httpserver.New(
//	    httpserver.WithConfig(cfg),
//	    httpserver.WithHandler(router),
//	    httpserver.WithShutdownHook(app.Shutdown),
//	)
//
//	// Blocks until SIGTERM, SIGINT or ctx cancellation.
//	err := server.ListenAndServe(ctx)
type Server struct {
	httpServer *http.Server
	config     Config
	logger     zerolog.Logger
}

// New creates a Server. If no config is provided, DefaultConfig() is used.
//
// Request flow through the built-in middleware:
//
//	RequestID -> Recovery -> Tracing -> Metrics -> RateLimit -> Middleware... -> Handler
func New(opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "query-executor"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	middlewares := []Middleware{
		RequestID(),
		Recovery(logger),
	}

	if cfg.TracingConfig != nil {
		tracingCfg := *cfg.TracingConfig
		tracingCfg.serviceName = cfg.ServiceName
		middlewares = append(middlewares, Tracing(tracingCfg))
	}

	if cfg.MetricsConfig != nil {
		metricsCfg := *cfg.MetricsConfig
		metricsCfg.serviceName = cfg.ServiceName
		metrics, err := NewMetrics(metricsCfg)
		if err != nil {
			logger.Warn().Err(err).Msg("http metrics disabled")
		} else {
			middlewares = append(middlewares, metrics.Middleware())
		}
	}

	if cfg.RateLimitConfig != nil {
		middlewares = append(middlewares, RateLimit(*cfg.RateLimitConfig))
	}

	middlewares = append(middlewares, cfg.Middleware...)

	handler := cfg.Handler
	if handler != nil {
		handler = Chain(middlewares...)(handler)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		config: cfg,
		logger: logger,
	}
}

// ListenAndServe listens on the configured address and blocks until
// shutdown. See Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.config.Handler == nil {
		return ErrNoHandler
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpserver: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln and blocks until SIGTERM, SIGINT or ctx
// cancellation, then shuts down gracefully.
//
// It returns nil on a clean shutdown, an error wrapping ErrForcedShutdown
// when ShutdownTimeout elapsed first, or the serve error if the listener
// failed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.Handler == nil {
		return ErrNoHandler
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("service", s.config.ServiceName).
			Msg("server starting")

		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			s.logger.Error().Err(err).Msg("server error")
			return err
		}
	case sig := <-signals:
		s.logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received")
	case <-ctx.Done():
		s.logger.Info().
			Err(ctx.Err()).
			Msg("context cancelled, shutting down")
	}

	// ctx may already be cancelled; the grace period starts fresh.
	return s.shutdown(context.WithoutCancel(ctx))
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info().
		Dur("timeout", s.config.ShutdownTimeout).
		Msg("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var errs error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Msg("graceful shutdown failed, forcing close")

		if closeErr := s.httpServer.Close(); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("force close failed")
		}
		errs = multierr.Append(errs, err)
	}

	for _, hook := range s.config.ShutdownHooks {
		if ctx.Err() != nil {
			break
		}
		errs = multierr.Append(errs, hook(ctx))
	}

	if ctx.Err() != nil {
		s.logger.Error().Msg("shutdown timeout exceeded, exiting")
		return fmt.Errorf("%w: %w", ErrForcedShutdown, multierr.Append(errs, ctx.Err()))
	}
	if errs != nil {
		return errs
	}

	s.logger.Info().Msg("server stopped gracefully")
	return nil
}

// Shutdown stops the server without running the shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ServiceName returns the configured service name.
func (s *Server) ServiceName() string {
	return s.config.ServiceName
}

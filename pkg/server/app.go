package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/carolinacraus/market-state-api/pkg/config"
	xhttp "github.com/carolinacraus/market-state-api/pkg/http"
	applogger "github.com/carolinacraus/market-state-api/pkg/logger"
)

// App encapsulates the HTTP service lifecycle.
type App struct {
	cfg         *config.Config
	logger      *applogger.Logger
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates a new App serving handler.
func New(cfg *config.Config, logger *applogger.Logger, handler xhttp.Handler) *App {
	return &App{cfg: cfg, logger: logger, httpHandler: handler}
}

// Handler returns the registered route set.
func (a *App) Handler() xhttp.Handler { return a.httpHandler }

// Run starts the HTTP server and blocks until ctx is done or a termination
// signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []xhttp.ServerOption{
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.logger),
	}
	if a.cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(a.cfg.Metrics.Path))
	}
	a.httpServer = xhttp.NewServer(a.httpHandler, opts...)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", applogger.Error(err))
		return err
	}
	a.logger.Info("market state service started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Strings("classifiers", a.cfg.Pipeline.Classifiers),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops the HTTP server. Infrastructure clients are closed by the
// cleanup returned from dependency injection.
func (a *App) shutdown() error {
	if err := a.httpServer.Stop(context.Background()); err != nil {
		a.logger.Error("http shutdown error", applogger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}

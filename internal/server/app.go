// Package server initializes and runs the gophaudio server: the HTTP gateway,
// the gRPC health endpoint and the retention sweeper, with graceful shutdown
// on SIGINT/SIGTERM/SIGQUIT.
package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/rest"

	gs "github.com/dmitrijs2005/gophaudio/internal/server/grpc"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	components *Components
	version    string
}

func NewApp(ctx context.Context, c *config.Config, version string) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	comps, err := NewComponents(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	return &App{config: c, logger: logger, components: comps, version: version}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) checks() ([]rest.Check, map[string]gs.Pinger) {
	checks := []rest.Check{
		{Name: "postgres", Pinger: DBPinger{DB: app.components.DB}},
		{Name: "storage", Pinger: app.components.Blobs},
	}
	if r := app.components.Redis(); r != nil {
		checks = append(checks, rest.Check{Name: "redis", Pinger: r})
	}

	pingers := make(map[string]gs.Pinger, len(checks))
	for _, c := range checks {
		pingers[c.Name] = c.Pinger
	}
	return checks, pingers
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc, checks []rest.Check) {
	c := app.components
	s := rest.NewServer(rest.Options{
		Address:         app.config.EndpointAddrHTTP,
		MaxUploadSize:   app.config.MaxUploadSize,
		AllowedOrigins:  app.config.CORSAllowedOrigins,
		ShutdownTimeout: app.config.ShutdownTimeout,
		Version:         app.version,
	}, c.Users, c.Artifacts, c.Conversion, c.Limiter, checks, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc, pingers map[string]gs.Pinger) {
	s := gs.NewHealthServer(app.config.EndpointAddrGRPC, app.logger, pingers, 0)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives or a server fails, then waits for every
// component to stop and closes connections.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "version", app.version)

	app.initSignalHandler(cancelFunc)

	checks, pingers := app.checks()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc, checks)
	}()

	if app.config.EndpointAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc, pingers)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.components.Retention.Run(ctx, app.config.RetentionInterval, app.config.RetentionMaxAge)
	}()

	wg.Wait()

	if err := app.components.Close(); err != nil {
		app.logger.Error(context.Background(), "error closing connections", "error", err)
	}
	app.logger.Info(context.Background(), "App stopped")
}

package main

import (
	"context"
	"os"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/dmitrijs2005/gophaudio/internal/server/services"
)

// backend is what the commands need from the server components.
type backend interface {
	Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (int, error)
	Purge(ctx context.Context) (*services.PurgeResult, error)
	Register(ctx context.Context, email, password string) (*models.User, error)
	DeleteAccountByEmail(ctx context.Context, email string) error
	Close() error
}

type componentsBackend struct {
	c *server.Components
}

func (b componentsBackend) Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	return b.c.Retention.Sweep(ctx, now, maxAge)
}

func (b componentsBackend) Purge(ctx context.Context) (*services.PurgeResult, error) {
	return b.c.Maintenance.Purge(ctx)
}

func (b componentsBackend) Register(ctx context.Context, email, password string) (*models.User, error) {
	return b.c.Users.Register(ctx, email, password)
}

func (b componentsBackend) DeleteAccountByEmail(ctx context.Context, email string) error {
	return b.c.Users.DeleteAccountByEmail(ctx, email)
}

func (b componentsBackend) Close() error { return b.c.Close() }

// newBackend is a seam for tests.
var newBackend = func(ctx context.Context, cfg *config.Config) (backend, error) {
	logger := logging.New(os.Stderr, cfg.LogLevel, "text")
	c, err := server.NewComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return componentsBackend{c: c}, nil
}

// loadConfig reads the server configuration; configPath behaves like the
// server's -c flag.
func loadConfig(configPath string) (*config.Config, error) {
	var args []string
	if configPath != "" {
		args = []string{"-c", configPath}
	}
	return config.Load(args)
}

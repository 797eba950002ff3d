package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophaudio/internal/filex"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/auth"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/converters/ffmpeg"
	"github.com/dmitrijs2005/gophaudio/internal/server/converters/gtts"
	"github.com/dmitrijs2005/gophaudio/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophaudio/internal/server/services"
)

// seams for tests
var (
	openDB         = repomanager.OpenDB
	newS3Store     = blobstore.NewS3Store
	newRepoManager = repomanager.NewPostgresRepositoryManager
	newLimiter     = ratelimit.New
)

// Components is everything built from a Config: storage, services and the
// optional rate limiter. Both the server and the admin CLI use it.
type Components struct {
	DB      *sql.DB
	Blobs   blobstore.BlobStore
	Limiter ratelimit.Limiter
	redis   *ratelimit.RedisLimiter

	Users       *services.UserService
	Artifacts   *services.ArtifactService
	Conversion  *services.ConversionService
	Retention   *services.RetentionService
	Maintenance *services.MaintenanceService
}

// DBPinger adapts *sql.DB to the Ping(ctx) shape health checks use.
type DBPinger struct{ DB *sql.DB }

func (p DBPinger) Ping(ctx context.Context) error { return p.DB.PingContext(ctx) }

// NewComponents opens the database, applies migrations and wires services.
func NewComponents(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Components, error) {
	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	c, err := newComponents(ctx, db, cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func newComponents(ctx context.Context, db *sql.DB, cfg *config.Config, logger logging.Logger) (*Components, error) {
	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	if _, err := filex.EnsureDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}

	c := &Components{DB: db, Blobs: blobs, Limiter: ratelimit.Unlimited{}}

	if cfg.RedisURL != "" {
		rl, err := newLimiter(ctx, cfg.RedisURL, cfg.RateLimitRPS, cfg.RateLimitBurst)
		if err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		c.redis = rl
		c.Limiter = rl
	}

	tokens := auth.NewTokenService(cfg.SecretKey)
	c.Users, err = services.NewUserService(db, rm, blobs, tokens, cfg, logger)
	if err != nil {
		c.closeRedis()
		return nil, err
	}
	c.Artifacts = services.NewArtifactService(db, rm, blobs, cfg.PublicBaseURL, logger)
	c.Conversion = services.NewConversionService(db, rm, blobs,
		gtts.New(cfg.TTSBaseURL), ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath), cfg, logger)
	c.Retention = services.NewRetentionService(db, rm, blobs, logger)
	c.Maintenance = services.NewMaintenanceService(db, rm, blobs, logger)

	return c, nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.StorageBackend {
	case config.StorageLocal:
		return blobstore.NewLocalStore(cfg.StorageDir)
	case config.StorageS3:
		return newS3Store(ctx, blobstore.S3Options{
			AccessKey:    cfg.S3RootUser,
			SecretKey:    cfg.S3RootPassword,
			Region:       cfg.S3Region,
			Bucket:       cfg.S3Bucket,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Redis returns the Redis-backed limiter, or nil when none is configured.
func (c *Components) Redis() *ratelimit.RedisLimiter {
	return c.redis
}

func (c *Components) closeRedis() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// Close releases the database and Redis connections.
func (c *Components) Close() error {
	return errors.Join(c.closeRedis(), c.DB.Close())
}

package server

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophaudio/internal/dbx"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/ratelimit"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/artifacts"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeManager struct {
	migrateErr error
	migrated   bool
}

func (m *fakeManager) RunMigrations(context.Context, *sql.DB) error {
	m.migrated = true
	return m.migrateErr
}
func (m *fakeManager) Users(db dbx.DBTX) users.Repository         { return users.NewPostgresRepository(db) }
func (m *fakeManager) Artifacts(db dbx.DBTX) artifacts.Repository { return artifacts.NewPostgresRepository(db) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.StorageDir = filepath.Join(t.TempDir(), "outputs")
	cfg.TempDir = filepath.Join(t.TempDir(), "tmp")
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

func withManager(t *testing.T, m repomanager.RepositoryManager) {
	t.Helper()
	old := newRepoManager
	newRepoManager = func() repomanager.RepositoryManager { return m }
	t.Cleanup(func() { newRepoManager = old })
}

func TestNewComponents_LocalStorage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	m := &fakeManager{}
	withManager(t, m)

	c, err := newComponents(context.Background(), db, testConfig(t), logging.NewDiscard())
	require.NoError(t, err)

	assert.True(t, m.migrated)
	assert.IsType(t, &blobstore.LocalStore{}, c.Blobs)
	assert.IsType(t, ratelimit.Unlimited{}, c.Limiter)
	assert.Nil(t, c.Redis())
	assert.NotNil(t, c.Users)
	assert.NotNil(t, c.Artifacts)
	assert.NotNil(t, c.Conversion)
	assert.NotNil(t, c.Retention)
	assert.NotNil(t, c.Maintenance)

	mock.ExpectClose()
	require.NoError(t, c.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewComponents_MigrationError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	withManager(t, &fakeManager{migrateErr: errors.New("bad sql")})

	_, err = newComponents(context.Background(), db, testConfig(t), logging.NewDiscard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations error")
}

func TestNewComponents_RedisError(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	withManager(t, &fakeManager{})
	old := newLimiter
	newLimiter = func(context.Context, string, int, int) (*ratelimit.RedisLimiter, error) {
		return nil, errors.New("refused")
	}
	t.Cleanup(func() { newLimiter = old })

	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	_, err = newComponents(context.Background(), db, cfg, logging.NewDiscard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis init error")
}

func TestNewComponents_OpenDBError(t *testing.T) {
	old := openDB
	openDB = func(context.Context, string) (*sql.DB, error) { return nil, errors.New("no route") }
	t.Cleanup(func() { openDB = old })

	_, err := NewComponents(context.Background(), testConfig(t), logging.NewDiscard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db init error")
}

func TestNewBlobStore(t *testing.T) {
	cfg := testConfig(t)

	s, err := newBlobStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, s)

	var got blobstore.S3Options
	old := newS3Store
	newS3Store = func(_ context.Context, o blobstore.S3Options) (*blobstore.S3Store, error) {
		got = o
		return &blobstore.S3Store{}, nil
	}
	t.Cleanup(func() { newS3Store = old })

	cfg.StorageBackend = config.StorageS3
	_, err = newBlobStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.S3Bucket, got.Bucket)
	assert.Equal(t, cfg.S3BaseEndpoint, got.BaseEndpoint)

	cfg.StorageBackend = "ftp"
	_, err = newBlobStore(context.Background(), cfg)
	require.Error(t, err)
}

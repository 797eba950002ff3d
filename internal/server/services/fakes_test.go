package services

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/dbx"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/auth"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	artifactsrepo "github.com/dmitrijs2005/gophaudio/internal/server/repositories/artifacts"
	usersrepo "github.com/dmitrijs2005/gophaudio/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

// --- in-memory repositories ---

type memStore struct {
	mu        sync.Mutex
	seq       int
	users     map[string]*models.User
	artifacts map[string]*models.Artifact
	now       func() time.Time

	// injected failures
	createArtifactErr error
	deleteArtifactErr map[string]error
	deleteUserErr     error
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]*models.User{},
		artifacts: map[string]*models.Artifact{},
		now:       time.Now,
	}
}

func (m *memStore) nextID() string {
	m.seq++
	return strconv.Itoa(m.seq)
}

func (m *memStore) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memStore) Users(dbx.DBTX) usersrepo.Repository          { return (*memUsers)(m) }
func (m *memStore) Artifacts(dbx.DBTX) artifactsrepo.Repository  { return (*memArtifacts)(m) }

func (m *memStore) artifactCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.artifacts)
}

func (m *memStore) userCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func (m *memStore) artifact(id string) (*models.Artifact, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[id]
	return a, ok
}

func (m *memStore) putArtifact(a *models.Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.ID] = a
}

func (m *memStore) putUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

type memUsers memStore

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.users {
		if x.Email == u.Email {
			return nil, common.ErrDuplicateIdentity
		}
	}
	cp := *u
	cp.ID = (*memStore)(r).nextID()
	cp.CreatedAt = r.now()
	r.users[cp.ID] = &cp
	return &cp, nil
}

func (r *memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.users {
		if x.Email == email {
			cp := *x
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *memUsers) List(context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.User, 0, len(r.users))
	for _, x := range r.users {
		out = append(out, x)
	}
	return out, nil
}

func (r *memUsers) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteUserErr != nil {
		return r.deleteUserErr
	}
	if _, ok := r.users[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.users, id)
	for k, a := range r.artifacts {
		if a.UserID == id {
			delete(r.artifacts, k)
		}
	}
	return nil
}

type memArtifacts memStore

func (r *memArtifacts) Create(_ context.Context, a *models.Artifact) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createArtifactErr != nil {
		return nil, r.createArtifactErr
	}
	cp := *a
	if cp.ID == "" {
		cp.ID = (*memStore)(r).nextID()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.now()
	}
	r.artifacts[cp.ID] = &cp
	return &cp, nil
}

func (r *memArtifacts) filter(keep func(*models.Artifact) bool) []*models.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Artifact
	for _, a := range r.artifacts {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *memArtifacts) ListByOwner(_ context.Context, userID string) ([]*models.Artifact, error) {
	return r.filter(func(a *models.Artifact) bool { return a.UserID == userID }), nil
}

func (r *memArtifacts) FindByOwnerAndName(_ context.Context, userID, filename string) (*models.Artifact, error) {
	out := r.filter(func(a *models.Artifact) bool { return a.UserID == userID && a.Filename == filename })
	if len(out) == 0 {
		return nil, common.ErrNotFound
	}
	return out[0], nil
}

func (r *memArtifacts) ListOlderThan(_ context.Context, cutoff time.Time) ([]*models.Artifact, error) {
	return r.filter(func(a *models.Artifact) bool { return a.CreatedAt.Before(cutoff) }), nil
}

func (r *memArtifacts) DeleteOlderThan(_ context.Context, cutoff time.Time) ([]*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Artifact
	for id, a := range r.artifacts {
		if a.CreatedAt.Before(cutoff) {
			cp := *a
			out = append(out, &cp)
			delete(r.artifacts, id)
		}
	}
	return out, nil
}

func (r *memArtifacts) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.deleteArtifactErr[id]; err != nil {
		return err
	}
	delete(r.artifacts, id)
	return nil
}

// --- in-memory blob store ---

type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	putErr  error
	getErr  error
	delErr  map[string]error
	deleted []string
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (b *memBlobs) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	d, ok := b.data[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.delErr[key]; err != nil {
		return err
	}
	b.deleted = append(b.deleted, key)
	if _, ok := b.data[key]; !ok {
		return common.ErrNotFound
	}
	delete(b.data, key)
	return nil
}

func (b *memBlobs) Ping(context.Context) error { return nil }

func (b *memBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "k"
	cfg.AccessTokenValidityDuration = 30 * time.Minute
	cfg.BcryptCost = bcrypt.MinCost
	cfg.TempDir = t.TempDir()
	cfg.ConversionTimeout = 5 * time.Second
	return cfg
}

func newTestUserService(t *testing.T, db *sql.DB, store *memStore, blobs *memBlobs) *UserService {
	t.Helper()
	cfg := testConfig(t)
	s, err := NewUserService(db, store, blobs, auth.NewTokenService(cfg.SecretKey), cfg, logging.NewDiscard())
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return s
}

func seedUser(store *memStore, id, email string) *models.User {
	u := &models.User{ID: id, Email: email, CreatedAt: time.Now()}
	store.putUser(u)
	return u
}

func seedArtifact(store *memStore, blobs *memBlobs, id, owner string, created time.Time) *models.Artifact {
	a := &models.Artifact{
		ID:        id,
		Filename:  id + ".mp3",
		Kind:      models.KindTextToAudio,
		Size:      3,
		CreatedAt: created,
		UserID:    owner,
	}
	store.putArtifact(a)
	if blobs != nil {
		_ = blobs.Put(context.Background(), a.Filename, []byte("mp3"))
	}
	return a
}

// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, token checks and account
// removal.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/cryptox"
	"github.com/dmitrijs2005/gophaudio/internal/dbx"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/auth"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/config"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/repomanager"
)

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// MaxPasswordBytes is bcrypt's input limit.
const MaxPasswordBytes = 72

// Token is what clients get back from signup and login.
type Token struct {
	AccessToken string
	TokenType   string
}

// UserService provides identity operations:
// - Register / Verify: the credential store
// - Signup / Login: the same plus a freshly issued access token
// - Authenticate: resolve a bearer token to a user
// - DeleteAccount: remove a user together with their artifacts
type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	blobs                       blobstore.BlobStore
	tokens                      *auth.TokenService
	accessTokenValidityDuration time.Duration
	bcryptCost                  int
	dummyHash                   string
	logger                      logging.Logger
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.BlobStore,
	tokens *auth.TokenService, cfg *config.Config, logger logging.Logger) (*UserService, error) {

	// compared against when the email is unknown, so both failure paths cost a bcrypt check
	dummy, err := cryptox.HashPassword(common.GenerateRandByteArray(16), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	return &UserService{
		db:                          db,
		repomanager:                 m,
		blobs:                       blobs,
		tokens:                      tokens,
		accessTokenValidityDuration: cfg.AccessTokenValidityDuration,
		bcryptCost:                  cfg.BcryptCost,
		dummyHash:                   dummy,
		logger:                      logger.With("module", "user_service"),
	}, nil
}

// NormalizeEmail trims and lower-cases email and checks it is a bare address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", common.ErrValidation)
	}
	return email, nil
}

// Register creates a new identity. An existing email yields
// common.ErrDuplicateIdentity.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", common.ErrValidation, MaxPasswordBytes)
	}

	repo := s.repomanager.Users(s.db)

	if _, err := repo.GetUserByEmail(ctx, email); err == nil {
		return nil, common.ErrDuplicateIdentity
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	pw := []byte(password)
	defer common.WipeByteArray(pw)

	hash, err := cryptox.HashPassword(pw, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	// the unique index still decides if two signups race past the lookup
	u, err := repo.Create(ctx, &models.User{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateIdentity) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Verify checks credentials. Unknown email and wrong password are
// indistinguishable: both return common.ErrInvalidCredentials.
func (s *UserService) Verify(ctx context.Context, email, password string) (*models.User, error) {
	pw := []byte(password)
	defer common.WipeByteArray(pw)

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_ = cryptox.CheckPassword(s.dummyHash, pw)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	if err := cryptox.CheckPassword(user.PasswordHash, pw); err != nil {
		if !errors.Is(err, cryptox.ErrMismatch) {
			s.logger.Error(ctx, "stored password hash unusable", "user_id", user.ID, "error", err)
		}
		return nil, common.ErrInvalidCredentials
	}
	return user, nil
}

// Signup registers the identity and logs it in straight away.
func (s *UserService) Signup(ctx context.Context, email, password string) (*Token, error) {
	u, err := s.Register(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Login verifies credentials and issues an access token.
func (s *UserService) Login(ctx context.Context, email, password string) (*Token, error) {
	u, err := s.Verify(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(u)
}

// Authenticate resolves a bearer token to its user. Tokens for identities
// that no longer exist are treated as invalid.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	email, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, fmt.Errorf("error looking up user: %w", err)
	}
	return user, nil
}

// DeleteAccount removes the bytes of every owned artifact and then the user
// with its artifact rows. If some bytes cannot be removed the account is kept
// so nothing is orphaned.
func (s *UserService) DeleteAccount(ctx context.Context, user *models.User) error {
	list, err := s.repomanager.Artifacts(s.db).ListByOwner(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("error listing artifacts: %w", err)
	}

	for _, a := range list {
		if err := removeBytes(ctx, s.blobs, a.Filename); err != nil {
			return fmt.Errorf("error deleting %s: %w", a.Filename, err)
		}
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		artifacts := s.repomanager.Artifacts(tx)
		for _, a := range list {
			if err := artifacts.Delete(ctx, a.ID); err != nil {
				return err
			}
		}
		return s.repomanager.Users(tx).Delete(ctx, user.ID)
	})
	if err != nil {
		return fmt.Errorf("error deleting user: %w", err)
	}

	s.logger.Info(ctx, "user deleted", "user_id", user.ID, "artifacts", len(list))
	return nil
}

// DeleteAccountByEmail looks the user up and calls DeleteAccount.
func (s *UserService) DeleteAccountByEmail(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.DeleteAccount(ctx, user)
}

func (s *UserService) issue(u *models.User) (*Token, error) {
	access, err := s.tokens.Issue(u.Email, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &Token{AccessToken: access, TokenType: common.TokenTypeBearer}, nil
}

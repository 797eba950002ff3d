// Package auth issues and validates the stateless access tokens handed to
// clients after signup or login.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService signs access tokens with HS256 and checks them back.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

type Option func(*TokenService)

// WithClock replaces time.Now, both for issuing and for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

func NewTokenService(secret string, opts ...Option) *TokenService {
	s := &TokenService{secret: []byte(secret), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Issue returns a signed token whose subject is the identity handle and
// which expires ttl from now.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})

	return token.SignedString(s.secret)
}

// Validate checks signature, algorithm and expiry and returns the subject.
// Expired tokens yield common.ErrTokenExpired, everything else that is wrong
// with the token yields common.ErrTokenInvalid.
func (s *TokenService) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrTokenInvalid
	}

	if !token.Valid || claims.Subject == "" {
		return "", common.ErrTokenInvalid
	}

	return claims.Subject, nil
}

package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/dbx"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/oklog/ulid/v2"
)

// seams for tests
var (
	timeNow = time.Now
	newID   = func() string { return ulid.Make().String() }
)

const columns = `id, filename, original_name, kind, size_bytes, created_at, user_id`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a, assigning an ID and CreatedAt when they are empty.
func (r *PostgresRepository) Create(ctx context.Context, a *models.Artifact) (*models.Artifact, error) {
	if !a.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown artifact kind %q", common.ErrValidation, a.Kind)
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		// Postgres keeps microseconds; trimming here keeps the struct and row equal.
		a.CreatedAt = timeNow().UTC().Truncate(time.Microsecond)
	}

	query :=
		`INSERT INTO artifacts (` + columns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Filename, a.OriginalName, string(a.Kind), a.Size, a.CreatedAt, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

// ListByOwner returns the owner's artifacts, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID string) ([]*models.Artifact, error) {
	query :=
		`SELECT ` + columns + ` FROM artifacts
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 `
	return r.query(ctx, query, userID)
}

// FindByOwnerAndName returns common.ErrNotFound both when the filename does
// not exist and when it belongs to someone else.
func (r *PostgresRepository) FindByOwnerAndName(ctx context.Context, userID, filename string) (*models.Artifact, error) {
	query :=
		`SELECT ` + columns + ` FROM artifacts
		 WHERE user_id = $1 AND filename = $2
		 `

	a, err := scanArtifact(r.db.QueryRowContext(ctx, query, userID, filename))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

// ListOlderThan returns artifacts created strictly before cutoff.
func (r *PostgresRepository) ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Artifact, error) {
	query :=
		`SELECT ` + columns + ` FROM artifacts
		 WHERE created_at < $1
		 ORDER BY created_at
		 `
	return r.query(ctx, query, cutoff)
}

// DeleteOlderThan removes every row created strictly before cutoff in one
// statement and returns the removed rows. Their bytes are the caller's job.
func (r *PostgresRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Artifact, error) {
	query :=
		`DELETE FROM artifacts
		 WHERE created_at < $1
		 RETURNING ` + columns + `
		 `
	return r.query(ctx, query, cutoff)
}

// Delete is idempotent: removing a row that is already gone is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (*models.Artifact, error) {
	a := &models.Artifact{}
	var (
		original sql.NullString
		kind     string
	)
	if err := s.Scan(&a.ID, &a.Filename, &original, &kind, &a.Size, &a.CreatedAt, &a.UserID); err != nil {
		return nil, err
	}
	if original.Valid {
		a.OriginalName = &original.String
	}
	a.Kind = models.ArtifactKind(kind)
	return a, nil
}

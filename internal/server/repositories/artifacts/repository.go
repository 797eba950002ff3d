// Package artifacts persists artifact metadata. Every read that serves a user
// is scoped by owner in SQL, so foreign rows are never returned.
package artifacts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, a *models.Artifact) (*models.Artifact, error)
	ListByOwner(ctx context.Context, userID string) ([]*models.Artifact, error)
	FindByOwnerAndName(ctx context.Context, userID, filename string) (*models.Artifact, error)
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Artifact, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]*models.Artifact, error)
	Delete(ctx context.Context, id string) error
}

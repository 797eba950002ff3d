package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/repomanager"
)

// ArtifactService serves a user's own artifacts.
type ArtifactService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	blobs         blobstore.BlobStore
	publicBaseURL string
	logger        logging.Logger
}

func NewArtifactService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.BlobStore,
	publicBaseURL string, logger logging.Logger) *ArtifactService {
	return &ArtifactService{
		db:            db,
		repomanager:   m,
		blobs:         blobs,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger.With("module", "artifact_service"),
	}
}

// List returns the user's artifacts, newest first.
func (s *ArtifactService) List(ctx context.Context, user *models.User) ([]*models.Artifact, error) {
	list, err := s.repomanager.Artifacts(s.db).ListByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("error listing artifacts: %w", err)
	}
	return list, nil
}

// Download returns the bytes of the user's artifact called filename.
//
// Missing and foreign artifacts both give common.ErrNotFound. A row whose
// bytes are gone is deleted on the spot and also reported as not found.
func (s *ArtifactService) Download(ctx context.Context, user *models.User, filename string) (*models.Artifact, []byte, error) {
	repo := s.repomanager.Artifacts(s.db)

	a, err := repo.FindByOwnerAndName(ctx, user.ID, filename)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.blobs.Get(ctx, a.Filename)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.logger.Warn(ctx, "artifact bytes missing, dropping row", "artifact_id", a.ID, "filename", a.Filename)
			if derr := repo.Delete(ctx, a.ID); derr != nil {
				s.logger.Error(ctx, "failed to drop orphaned row", "artifact_id", a.ID, "error", derr)
			}
			return nil, nil, common.ErrNotFound
		}
		return nil, nil, fmt.Errorf("error reading artifact: %w", err)
	}

	return a, data, nil
}

// DownloadURL is the public URL clients fetch filename from.
func (s *ArtifactService) DownloadURL(filename string) string {
	return s.publicBaseURL + "/download/" + filename
}

// removeBytes deletes an artifact's bytes; bytes that are already gone count
// as removed.
func removeBytes(ctx context.Context, blobs blobstore.BlobStore, key string) error {
	if err := blobs.Delete(ctx, key); err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}
	return nil
}

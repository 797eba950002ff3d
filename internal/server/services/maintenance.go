package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/dbx"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/models"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/repomanager"
)

// MaintenanceService holds operator-only bulk operations.
type MaintenanceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.BlobStore
	now         func() time.Time
	logger      logging.Logger
}

func NewMaintenanceService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.BlobStore, logger logging.Logger) *MaintenanceService {
	return &MaintenanceService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		now:         time.Now,
		logger:      logger.With("module", "maintenance"),
	}
}

// PurgeResult reports what Purge removed.
type PurgeResult struct {
	Artifacts int
	Users     int
}

// Purge deletes every artifact and then every user. Bytes go first and the
// first failure stops the purge with all rows intact; the rows are then
// removed in one transaction. It is meant for a stopped service: artifacts
// created while it runs may lose their rows to the user cascade.
func (s *MaintenanceService) Purge(ctx context.Context) (*PurgeResult, error) {
	cutoff := s.now()

	listed, err := s.repomanager.Artifacts(s.db).ListOlderThan(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("error listing artifacts: %w", err)
	}
	for _, a := range listed {
		if err := removeBytes(ctx, s.blobs, a.Filename); err != nil {
			return nil, fmt.Errorf("error deleting %s: %w", a.Filename, err)
		}
	}

	var deleted []*models.Artifact
	res, err := dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*PurgeResult, error) {
		var err error
		deleted, err = s.repomanager.Artifacts(tx).DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("error deleting artifacts: %w", err)
		}

		users := s.repomanager.Users(tx)
		list, err := users.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("error listing users: %w", err)
		}
		for _, u := range list {
			if err := users.Delete(ctx, u.ID); err != nil {
				return nil, fmt.Errorf("error deleting user %s: %w", u.ID, err)
			}
		}
		return &PurgeResult{Artifacts: len(deleted), Users: len(list)}, nil
	})
	if err != nil {
		return nil, err
	}

	// rows that showed up between the listing and the delete
	seen := make(map[string]struct{}, len(listed))
	for _, a := range listed {
		seen[a.ID] = struct{}{}
	}
	for _, a := range deleted {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		if err := removeBytes(ctx, s.blobs, a.Filename); err != nil {
			s.logger.Error(ctx, "failed to delete purged bytes", "filename", a.Filename, "error", err)
		}
	}

	s.logger.Warn(ctx, "store purged", "artifacts", res.Artifacts, "users", res.Users)
	return res, nil
}

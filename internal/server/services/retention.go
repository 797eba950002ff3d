package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophaudio/internal/common"
	"github.com/dmitrijs2005/gophaudio/internal/logging"
	"github.com/dmitrijs2005/gophaudio/internal/server/blobstore"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/repomanager"
)

// RetentionService removes artifacts older than a configured age.
type RetentionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.BlobStore
	now         func() time.Time
	logger      logging.Logger
}

func NewRetentionService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.BlobStore, logger logging.Logger) *RetentionService {
	return &RetentionService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		now:         time.Now,
		logger:      logger.With("module", "retention"),
	}
}

// Sweep deletes every artifact created before now-maxAge and returns how
// many were removed. Bytes go first; a row whose bytes could not be removed
// is kept for the next sweep. Per-artifact failures are logged, not returned.
func (s *RetentionService) Sweep(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	repo := s.repomanager.Artifacts(s.db)

	expired, err := repo.ListOlderThan(ctx, now.Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("error listing expired artifacts: %w", err)
	}

	removed := 0
	for _, a := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := s.blobs.Delete(ctx, a.Filename); err != nil {
			if !errors.Is(err, common.ErrNotFound) {
				s.logger.Error(ctx, "failed to delete expired bytes", "filename", a.Filename, "error", err)
				continue
			}
			s.logger.Warn(ctx, "expired bytes already missing", "filename", a.Filename, "artifact_id", a.ID)
		}
		if err := repo.Delete(ctx, a.ID); err != nil {
			s.logger.Error(ctx, "failed to delete expired row", "artifact_id", a.ID, "error", err)
			continue
		}
		removed++
	}

	if len(expired) > 0 {
		s.logger.Info(ctx, "retention sweep done", "expired", len(expired), "removed", removed)
	}
	return removed, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval means a single sweep.
func (s *RetentionService) Run(ctx context.Context, interval, maxAge time.Duration) {
	s.sweepLogged(ctx, maxAge)
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweepLogged(ctx, maxAge)
		}
	}
}

func (s *RetentionService) sweepLogged(ctx context.Context, maxAge time.Duration) {
	if _, err := s.Sweep(ctx, s.now(), maxAge); err != nil && ctx.Err() == nil {
		s.logger.Error(ctx, "retention sweep failed", "error", err)
	}
}

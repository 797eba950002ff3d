package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophaudio/internal/dbx"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/artifacts"
	"github.com/dmitrijs2005/gophaudio/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so services can use
// the same code inside and outside transactions.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Artifacts(db dbx.DBTX) artifacts.Repository
}

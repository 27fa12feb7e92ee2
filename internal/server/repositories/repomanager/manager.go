package repomanager

import (
	"context"
	"database/sql"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/dbx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/artifacts"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/versions"
)

// RepositoryManager vends repository implementations bound to a DBTX, so a
// service can run several repositories inside one transaction by handing
// them the same transactional handle.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Versions(db dbx.DBTX) versions.Repository
	Artifacts(db dbx.DBTX) artifacts.Repository
}

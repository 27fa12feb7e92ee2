package repomanager

import (
	"context"
	"database/sql"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/dbx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/artifacts"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/repositories/versions"
)

// MemoryRepositoryManager vends shared in-memory repositories. The DBTX
// argument is ignored; state lives in the manager, so tests exercise the
// same data across "transactions".
type MemoryRepositoryManager struct {
	versions  *versions.MemoryRepository
	artifacts *artifacts.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		versions:  versions.NewMemoryRepository(),
		artifacts: artifacts.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

func (m *MemoryRepositoryManager) Versions(db dbx.DBTX) versions.Repository {
	return m.versions
}

func (m *MemoryRepositoryManager) Artifacts(db dbx.DBTX) artifacts.Repository {
	return m.artifacts
}

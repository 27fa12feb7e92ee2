package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/dbx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

// PostgresRepository implements artifact storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, a *models.Artifact) error {
	branch := a.CurrentBranch
	if branch == "" {
		branch = common.DefaultBranch
	}
	query := `INSERT INTO artifacts (id, title, current_branch) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, a.ID, a.Title, branch); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	query := `SELECT id, title, current_branch, current_version_id, created_at FROM artifacts WHERE id = $1`

	var a models.Artifact
	var current sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Title, &a.CurrentBranch, &current, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if current.Valid {
		a.CurrentVersionID = &current.String
	}
	return &a, nil
}

func (r *PostgresRepository) SetCurrentVersion(ctx context.Context, artifactID, versionID string) error {
	query := `UPDATE artifacts SET current_version_id = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, artifactID, versionID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrArtifactNotFound
	}
	return nil
}

package versions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/dbx"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

// SQLSTATE codes that signal a lost race, not a broken query.
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

// PostgresRepository implements the version store over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const versionColumns = `id, artifact_id, branch, version_number, content, content_hash,
	parent_version_id, merge_base_id, second_parent_id,
	change_description, changed_by, metadata, created_at`

// Insert appends a version row. A unique violation on
// (artifact_id, branch, version_number) maps to common.ErrVersionConflict.
func (r *PostgresRepository) Insert(ctx context.Context, v *models.Version) error {
	meta, err := json.Marshal(metadataOrEmpty(v.Metadata))
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	query := `
		INSERT INTO versions (id, artifact_id, branch, version_number, content, content_hash,
			parent_version_id, merge_base_id, second_parent_id,
			change_description, changed_by, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err = r.db.ExecContext(ctx, query,
		v.ID, v.ArtifactID, v.EffectiveBranch(), v.VersionNumber, v.Content, v.ContentHash,
		v.ParentVersionID, v.MergeBaseID, v.SecondParentID,
		v.ChangeDescription, v.ChangedBy, meta)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrVersionConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, artifactID, versionID string) (*models.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM versions WHERE artifact_id = $1 AND id = $2`
	v, err := scanVersion(r.db.QueryRowContext(ctx, query, artifactID, versionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrVersionNotFound
	}
	return v, err
}

func (r *PostgresRepository) GetHead(ctx context.Context, artifactID, branch string) (*models.Version, error) {
	query := `
		SELECT ` + versionColumns + ` FROM versions
		WHERE artifact_id = $1 AND branch = $2
		  AND NOT EXISTS (
			SELECT 1 FROM deleted_branches d
			WHERE d.artifact_id = versions.artifact_id AND d.branch = versions.branch)
		ORDER BY version_number DESC
		LIMIT 1
	`
	v, err := scanVersion(r.db.QueryRowContext(ctx, query, artifactID, branch))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrBranchNotFound
	}
	return v, err
}

func (r *PostgresRepository) BranchExists(ctx context.Context, artifactID, branch string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM versions WHERE artifact_id = $1 AND branch = $2)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, artifactID, branch).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ListHeads(ctx context.Context, artifactID string) ([]*models.BranchHead, error) {
	query := `
		SELECT DISTINCT ON (branch) branch, id, version_number
		FROM versions
		WHERE artifact_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM deleted_branches d
			WHERE d.artifact_id = versions.artifact_id AND d.branch = versions.branch)
		ORDER BY branch, version_number DESC
	`
	rows, err := r.db.QueryContext(ctx, query, artifactID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var heads []*models.BranchHead
	for rows.Next() {
		var h models.BranchHead
		if err := rows.Scan(&h.Name, &h.HeadVersionID, &h.HeadVersionNumber); err != nil {
			return nil, err
		}
		h.IsReserved = common.ReservedBranch(h.Name)
		heads = append(heads, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return heads, nil
}

func (r *PostgresRepository) ListByBranch(ctx context.Context, artifactID, branch string) ([]*models.Version, error) {
	query := `
		SELECT ` + versionColumns + ` FROM versions
		WHERE artifact_id = $1 AND branch = $2
		ORDER BY version_number ASC
	`
	rows, err := r.db.QueryContext(ctx, query, artifactID, branch)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) MarkBranchDeleted(ctx context.Context, artifactID, branch, actor string) error {
	query := `INSERT INTO deleted_branches (artifact_id, branch, deleted_by) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, artifactID, branch, actor); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) BranchDeleted(ctx context.Context, artifactID, branch string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM deleted_branches WHERE artifact_id = $1 AND branch = $2)`
	var deleted bool
	if err := r.db.QueryRowContext(ctx, query, artifactID, branch).Scan(&deleted); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return deleted, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(s scanner) (*models.Version, error) {
	var v models.Version
	var parent, mergeBase, secondParent sql.NullString
	var meta []byte

	err := s.Scan(&v.ID, &v.ArtifactID, &v.Branch, &v.VersionNumber, &v.Content, &v.ContentHash,
		&parent, &mergeBase, &secondParent,
		&v.ChangeDescription, &v.ChangedBy, &meta, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	v.ParentVersionID = nullableString(parent)
	v.MergeBaseID = nullableString(mergeBase)
	v.SecondParentID = nullableString(secondParent)

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &v.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &v, nil
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func metadataOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// RetryablePgError reports whether err is a transient transaction failure
// (serialization failure or the unique-index backstop firing) that a caller
// should retry after re-reading the branch head.
func RetryablePgError(err error) bool {
	if errors.Is(err, common.ErrVersionConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgUniqueViolation
	}
	return false
}

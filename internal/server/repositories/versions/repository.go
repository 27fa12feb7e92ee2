// Package versions provides the append-only version store: snapshot rows
// are inserted exactly once and never updated or physically deleted.
package versions

import (
	"context"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

// Repository is the durable store of version snapshots per artifact.
//
// Implementations must return common.ErrVersionConflict from Insert when a
// row with the same (artifact, branch, version number) already exists; the
// caller's transaction retries after re-reading the head.
type Repository interface {
	// Insert appends a new immutable version row.
	Insert(ctx context.Context, v *models.Version) error

	// GetByID fetches one version of the given artifact.
	// Returns common.ErrVersionNotFound on a miss.
	GetByID(ctx context.Context, artifactID, versionID string) (*models.Version, error)

	// GetHead returns the version with the maximum version number on the
	// branch, excluding logically deleted branches.
	// Returns common.ErrBranchNotFound when the branch has no visible head.
	GetHead(ctx context.Context, artifactID, branch string) (*models.Version, error)

	// BranchExists reports whether any version row carries the branch
	// label, including rows of a logically deleted branch: a deleted
	// branch's name stays occupied because its rows are retained.
	BranchExists(ctx context.Context, artifactID, branch string) (bool, error)

	// ListHeads returns the derived branch view for an artifact, one entry
	// per visible branch.
	ListHeads(ctx context.Context, artifactID string) ([]*models.BranchHead, error)

	// ListByBranch returns a branch's versions ordered by version number,
	// oldest first.
	ListByBranch(ctx context.Context, artifactID, branch string) ([]*models.Version, error)

	// MarkBranchDeleted records the logical deletion of a branch.
	MarkBranchDeleted(ctx context.Context, artifactID, branch, actor string) error

	// BranchDeleted reports whether the branch was logically deleted.
	BranchDeleted(ctx context.Context, artifactID, branch string) (bool, error)
}

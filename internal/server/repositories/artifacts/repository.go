// Package artifacts provides the minimal manuscript registry consumed by
// the version-control engine: existence checks, the designated current
// branch and the current-version pointer.
package artifacts

import (
	"context"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

type Repository interface {
	// Create registers a manuscript. CurrentBranch defaults to "main".
	Create(ctx context.Context, a *models.Artifact) error

	// GetByID returns common.ErrArtifactNotFound on a miss.
	GetByID(ctx context.Context, id string) (*models.Artifact, error)

	// SetCurrentVersion moves the artifact's current-version pointer.
	SetCurrentVersion(ctx context.Context, artifactID, versionID string) error
}

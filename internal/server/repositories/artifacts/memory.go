package artifacts

import (
	"context"
	"sync"
	"time"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

// MemoryRepository is an in-memory Repository used in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.Artifact
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*models.Artifact)}
}

func (r *MemoryRepository) Create(ctx context.Context, a *models.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *a
	if stored.CurrentBranch == "" {
		stored.CurrentBranch = common.DefaultBranch
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.rows[stored.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.rows[id]
	if !ok {
		return nil, common.ErrArtifactNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *MemoryRepository) SetCurrentVersion(ctx context.Context, artifactID, versionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[artifactID]
	if !ok {
		return common.ErrArtifactNotFound
	}
	id := versionID
	a.CurrentVersionID = &id
	return nil
}

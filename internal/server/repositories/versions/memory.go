package versions

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

// MemoryRepository is an in-memory Repository used in tests and embedded
// setups. It enforces the same (artifact, branch, version number)
// uniqueness rule as the Postgres schema.
type MemoryRepository struct {
	mu       sync.RWMutex
	rows     []*models.Version
	byID     map[string]*models.Version // key: artifactID + "/" + versionID
	deleted  map[string]string          // key: artifactID + "/" + branch -> actor
	occupied map[string]struct{}        // key: artifactID + "/" + branch + "/" + number
}

// NewMemoryRepository constructs an empty in-memory version store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[string]*models.Version),
		deleted:  make(map[string]string),
		occupied: make(map[string]struct{}),
	}
}

func idKey(artifactID, versionID string) string {
	return artifactID + "/" + versionID
}

func branchKey(artifactID, branch string) string {
	return artifactID + "/" + branch
}

func numberKey(artifactID, branch string, number int64) string {
	return fmt.Sprintf("%s/%s/%d", artifactID, branch, number)
}

func (r *MemoryRepository) Insert(ctx context.Context, v *models.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := numberKey(v.ArtifactID, v.EffectiveBranch(), v.VersionNumber)
	if _, taken := r.occupied[key]; taken {
		return common.ErrVersionConflict
	}

	stored := *v
	stored.Branch = v.EffectiveBranch()
	r.rows = append(r.rows, &stored)
	r.byID[idKey(stored.ArtifactID, stored.ID)] = &stored
	r.occupied[key] = struct{}{}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, artifactID, versionID string) (*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byID[idKey(artifactID, versionID)]
	if !ok {
		return nil, common.ErrVersionNotFound
	}
	copied := *v
	return &copied, nil
}

func (r *MemoryRepository) GetHead(ctx context.Context, artifactID, branch string) (*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, gone := r.deleted[branchKey(artifactID, branch)]; gone {
		return nil, common.ErrBranchNotFound
	}

	var head *models.Version
	for _, v := range r.rows {
		if v.ArtifactID != artifactID || v.Branch != branch {
			continue
		}
		if head == nil || v.VersionNumber > head.VersionNumber {
			head = v
		}
	}
	if head == nil {
		return nil, common.ErrBranchNotFound
	}
	copied := *head
	return &copied, nil
}

func (r *MemoryRepository) BranchExists(ctx context.Context, artifactID, branch string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, v := range r.rows {
		if v.ArtifactID == artifactID && v.Branch == branch {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) ListHeads(ctx context.Context, artifactID string) ([]*models.BranchHead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	heads := make(map[string]*models.Version)
	for _, v := range r.rows {
		if v.ArtifactID != artifactID {
			continue
		}
		if _, gone := r.deleted[branchKey(artifactID, v.Branch)]; gone {
			continue
		}
		if cur, ok := heads[v.Branch]; !ok || v.VersionNumber > cur.VersionNumber {
			heads[v.Branch] = v
		}
	}

	result := make([]*models.BranchHead, 0, len(heads))
	for name, v := range heads {
		result = append(result, &models.BranchHead{
			Name:              name,
			HeadVersionID:     v.ID,
			HeadVersionNumber: v.VersionNumber,
			IsReserved:        common.ReservedBranch(name),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (r *MemoryRepository) ListByBranch(ctx context.Context, artifactID, branch string) ([]*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Version
	for _, v := range r.rows {
		if v.ArtifactID == artifactID && v.Branch == branch {
			copied := *v
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].VersionNumber < result[j].VersionNumber })
	return result, nil
}

func (r *MemoryRepository) MarkBranchDeleted(ctx context.Context, artifactID, branch, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.deleted[branchKey(artifactID, branch)] = actor
	return nil
}

func (r *MemoryRepository) BranchDeleted(ctx context.Context, artifactID, branch string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, gone := r.deleted[branchKey(artifactID, branch)]
	return gone, nil
}

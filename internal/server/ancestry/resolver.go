// Package ancestry resolves the lowest common ancestor of two versions by
// walking parent pointers. Each version stores a direct parent reference,
// so no branch-structure traversal is needed; the cost is
// O(depthA + depthB) lookups.
package ancestry

import (
	"context"
	"fmt"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/models"
)

// DefaultMaxDepth bounds a single parent-chain walk. The contract is
// depth-unlimited for well-formed histories; the cap only converts corrupt
// or cyclic data into a detectable error instead of an unbounded loop.
const DefaultMaxDepth = 100000

// VersionGetter is the single lookup the resolver needs from the store.
type VersionGetter interface {
	GetByID(ctx context.Context, artifactID, versionID string) (*models.Version, error)
}

// Resolver walks parent chains over a version store.
type Resolver struct {
	store    VersionGetter
	maxDepth int
}

// NewResolver constructs a Resolver with DefaultMaxDepth.
func NewResolver(store VersionGetter) *Resolver {
	return &Resolver{store: store, maxDepth: DefaultMaxDepth}
}

// NewResolverWithDepth constructs a Resolver with a custom walk bound.
func NewResolverWithDepth(store VersionGetter, maxDepth int) *Resolver {
	return &Resolver{store: store, maxDepth: maxDepth}
}

// FindCommonAncestor returns the id of the nearest version reachable from
// both versionA and versionB by following parent pointers, or "" when the
// two histories share no common root. FindCommonAncestor(v, v) == v.
func (r *Resolver) FindCommonAncestor(ctx context.Context, artifactID, versionA, versionB string) (string, error) {
	seen := make(map[string]struct{})

	// First walk: collect versionA's full ancestry, itself included.
	id := versionA
	for depth := 0; id != ""; depth++ {
		if depth > r.maxDepth {
			return "", fmt.Errorf("walking ancestry of %s: %w", versionA, common.ErrAncestryDepthExceeded)
		}
		seen[id] = struct{}{}
		v, err := r.store.GetByID(ctx, artifactID, id)
		if err != nil {
			return "", fmt.Errorf("resolve version %s: %w", id, err)
		}
		id = deref(v.ParentVersionID)
	}

	// Second walk: the first hit in the collected set is the LCA.
	id = versionB
	for depth := 0; id != ""; depth++ {
		if depth > r.maxDepth {
			return "", fmt.Errorf("walking ancestry of %s: %w", versionB, common.ErrAncestryDepthExceeded)
		}
		if _, ok := seen[id]; ok {
			return id, nil
		}
		v, err := r.store.GetByID(ctx, artifactID, id)
		if err != nil {
			return "", fmt.Errorf("resolve version %s: %w", id, err)
		}
		id = deref(v.ParentVersionID)
	}

	// Exhausted without a hit: histories have no common root. A distinct
	// outcome for the caller, not a crash.
	return "", nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

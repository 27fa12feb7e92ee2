// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/common"
)

// Version is a full-text snapshot of a manuscript artifact on a branch.
// A version is created exactly once (branch creation, direct commit,
// rollback, or merge) and never mutated or physically deleted.
type Version struct {
	// ID is an opaque unique identifier.
	ID string
	// ArtifactID is the owning manuscript.
	ArtifactID string
	// Branch is the branch label; empty means "main".
	Branch string
	// VersionNumber is a positive integer, monotonically increasing within
	// a branch, starting at 1 for the branch's first version. It is not
	// globally unique across branches of the same artifact.
	VersionNumber int64
	// Content is the full text snapshot.
	Content string
	// ContentHash is the digest of Content, used for integrity
	// verification, not identity.
	ContentHash string
	// ParentVersionID references the version this one was derived from.
	// Nil only for the very first version of an artifact's main branch.
	ParentVersionID *string

	// Merge provenance; set only on versions produced by a three-way merge.
	MergeBaseID    *string
	SecondParentID *string

	ChangeDescription string
	ChangedBy         string
	CreatedAt         time.Time
	Metadata          map[string]string
}

// EffectiveBranch returns the branch label, treating absence as the
// default branch.
func (v *Version) EffectiveBranch() string {
	if v.Branch == "" {
		return common.DefaultBranch
	}
	return v.Branch
}

// Artifact is the minimal registry row for a manuscript, carrying the
// designated current branch and current-version pointer.
type Artifact struct {
	ID               string
	Title            string
	CurrentBranch    string
	CurrentVersionID *string
	CreatedAt        time.Time
}

// BranchHead is the derived branch view: the version with the highest
// version number carrying that branch label for an artifact.
type BranchHead struct {
	Name              string
	HeadVersionID     string
	HeadVersionNumber int64
	IsReserved        bool
}

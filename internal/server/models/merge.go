package models

import "github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/diffx"

// MergeStatus is the terminal state of a merge attempt.
type MergeStatus string

const (
	// MergeUpToDate: the target already contains everything from the
	// source; no version was created.
	MergeUpToDate MergeStatus = "UP_TO_DATE"
	// MergeFastForward: the target had not diverged from the common
	// ancestor and adopted the source head's content as a new version.
	MergeFastForward MergeStatus = "FAST_FORWARD"
	// MergeConflict: both branches edited overlapping base ranges; no
	// version was written. A conflict is a first-class outcome requiring a
	// caller decision, not an error.
	MergeConflict MergeStatus = "CONFLICT"
	// MergeMerged: a three-way merge version was written on the target.
	MergeMerged MergeStatus = "MERGED"
)

// BranchStats summarizes one branch's divergence from the merge base.
type BranchStats struct {
	AddedLines   int
	RemovedLines int
}

// MergeResult describes the outcome of merging one branch into another.
type MergeResult struct {
	Status MergeStatus

	// NewVersion is set for FAST_FORWARD and MERGED.
	NewVersion *Version

	// MergeBaseID is the lowest common ancestor used for the decision.
	MergeBaseID string

	// Conflicts, SourceStats and TargetStats are populated for CONFLICT.
	Conflicts   []diffx.Conflict
	SourceStats BranchStats
	TargetStats BranchStats
}

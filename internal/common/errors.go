// Package common defines shared constants and sentinel errors used across
// the version-control engine. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Validation errors, rejected before any storage access.
	ErrInvalidBranchName = errors.New("invalid branch name")
	ErrSelfMerge         = errors.New("source and target branch are the same")

	// Not-found errors, rejected after a lookup miss.
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrBranchNotFound   = errors.New("branch not found")
	ErrVersionNotFound  = errors.New("version not found")

	// State-conflict errors, rejected due to current data state.
	ErrBranchAlreadyExists = errors.New("branch already exists")
	ErrReservedBranch      = errors.New("branch name is reserved")
	ErrNoCommonAncestor    = errors.New("versions share no common ancestor")

	// Two writers observed the same branch head; the losing insert gets
	// this and may be retried.
	ErrVersionConflict = errors.New("version conflict")

	// Storage-corruption errors. These indicate damaged data, not bad
	// input, and are not recoverable by retrying with corrected input.
	ErrDigestMismatch        = errors.New("content digest mismatch")
	ErrAncestryDepthExceeded = errors.New("ancestry depth limit exceeded")

	// Auth errors (invalid or malformed actor token).
	ErrInvalidToken = errors.New("invalid token")
)

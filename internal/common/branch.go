package common

import "regexp"

// DefaultBranch is the branch every artifact starts on. A version row with
// an empty branch label is treated as belonging to it.
const DefaultBranch = "main"

// branchNamePattern restricts branch labels to a safe identifier alphabet.
var branchNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// reservedBranches are protected from deletion by naming convention.
var reservedBranches = map[string]struct{}{
	"main":         {},
	"rebuttal":     {},
	"camera-ready": {},
}

// ValidBranchName reports whether name is an acceptable branch label.
func ValidBranchName(name string) bool {
	return branchNamePattern.MatchString(name)
}

// ReservedBranch reports whether name is protected from deletion.
func ReservedBranch(name string) bool {
	_, ok := reservedBranches[name]
	return ok
}

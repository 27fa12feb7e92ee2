package diffx

import "fmt"

// Range is a half-open [Start, End) interval of base line indexes.
type Range struct {
	Start int
	End   int
}

// Overlaps reports whether two half-open ranges intersect.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End && o.Start < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Conflict is a pair of overlapping base-line ranges edited by both sides.
type Conflict struct {
	SourceRange Range
	TargetRange Range
	Description string
}

// ChangedBaseRanges reconstructs the base-line ranges a diff deleted
// (i.e. changed) relative to the base. The running base counter advances on
// equal and delete runs; inserts consume no base lines and so never mark a
// base range as changed on their own.
func ChangedBaseRanges(d *LineDiff) []Range {
	var ranges []Range
	line := 0
	for _, op := range d.Operations {
		switch op.Kind {
		case OpEqual:
			line += len(op.Lines)
		case OpDelete:
			ranges = append(ranges, Range{Start: line, End: line + len(op.Lines)})
			line += len(op.Lines)
		case OpInsert:
		}
	}
	return ranges
}

// DetectConflicts compares two diffs taken against the same base and reports
// every pair of overlapping changed ranges. Pairs are reported raw: adjacent
// or nested overlaps are not merged or deduplicated, since callers depend on
// pairwise overlap counts.
func DetectConflicts(baseToSource, baseToTarget *LineDiff) []Conflict {
	sourceRanges := ChangedBaseRanges(baseToSource)
	targetRanges := ChangedBaseRanges(baseToTarget)

	var conflicts []Conflict
	for _, s := range sourceRanges {
		for _, t := range targetRanges {
			if !s.Overlaps(t) {
				continue
			}
			conflicts = append(conflicts, Conflict{
				SourceRange: s,
				TargetRange: t,
				Description: fmt.Sprintf("both branches edit base lines %s and %s", s, t),
			})
		}
	}
	return conflicts
}

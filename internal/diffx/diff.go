// Package diffx computes line-level diffs between manuscript snapshots and
// detects overlapping edits between two diffs taken against a shared base.
// It is pure: nothing here touches storage.
package diffx

import "strings"

// OpKind classifies a run of lines in an edit script.
type OpKind int

const (
	OpEqual OpKind = iota
	OpInsert
	OpDelete
)

var opKindNames = map[OpKind]string{
	OpEqual:  "equal",
	OpInsert: "insert",
	OpDelete: "delete",
}

func (k OpKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Operation is a maximal run of lines sharing one edit kind. Equal and
// delete runs carry base lines; insert runs carry lines from the other side.
type Operation struct {
	Kind  OpKind
	Lines []string
}

// LineDiff is a minimal line-level edit script from base to other, plus
// line tallies derived from the operations.
type LineDiff struct {
	Operations     []Operation
	AddedLines     int
	RemovedLines   int
	UnchangedLines int
}

// SplitLines splits text into lines without the terminating newline of the
// final line; "A\nB\n" and "A\nB" both yield [A B]. Empty text has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// ComputeLineDiff produces a minimal edit script from base to other using
// Myers' algorithm. Runs of a single kind are coalesced, so no two adjacent
// operations share a kind and equal runs are always maximal.
func ComputeLineDiff(base, other string) *LineDiff {
	baseLines := SplitLines(base)
	otherLines := SplitLines(other)

	script := editScript(baseLines, otherLines)

	d := &LineDiff{}
	for _, e := range script {
		switch e.kind {
		case OpEqual:
			d.UnchangedLines++
		case OpInsert:
			d.AddedLines++
		case OpDelete:
			d.RemovedLines++
		}
		n := len(d.Operations)
		if n > 0 && d.Operations[n-1].Kind == e.kind {
			d.Operations[n-1].Lines = append(d.Operations[n-1].Lines, e.line)
			continue
		}
		d.Operations = append(d.Operations, Operation{Kind: e.kind, Lines: []string{e.line}})
	}
	return d
}

// edit is a single-line step of the raw edit script.
type edit struct {
	kind OpKind
	line string
}

func editScript(base, other []string) []edit {
	n, m := len(base), len(other)
	switch {
	case n == 0 && m == 0:
		return nil
	case n == 0:
		return allOf(OpInsert, other)
	case m == 0:
		return allOf(OpDelete, base)
	}
	return myers(base, other)
}

func allOf(kind OpKind, lines []string) []edit {
	script := make([]edit, len(lines))
	for i, line := range lines {
		script[i] = edit{kind: kind, line: line}
	}
	return script
}

// myers runs the greedy O((N+M)D) shortest-edit-script search, keeping a
// snapshot of the frontier per depth so the path can be reconstructed.
func myers(base, other []string) []edit {
	n, m := len(base), len(other)
	bound := n + m
	offset := bound

	v := make([]int, 2*bound+1)
	var trace [][]int

search:
	for depth := 0; depth <= bound; depth++ {
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)

		for k := -depth; k <= depth; k += 2 {
			var x int
			if k == -depth || (k != depth && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && base[x] == other[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				break search
			}
		}
	}

	return backtrack(trace, base, other, offset)
}

func backtrack(trace [][]int, base, other []string, offset int) []edit {
	var script []edit
	x, y := len(base), len(other)

	for depth := len(trace) - 1; depth >= 0; depth-- {
		prev := trace[depth]
		k := x - y

		var prevK int
		if k == -depth || (k != depth && prev[offset+k-1] < prev[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := prev[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			script = append(script, edit{kind: OpEqual, line: base[x]})
		}
		if depth > 0 {
			if prevK < k {
				script = append(script, edit{kind: OpDelete, line: base[prevX]})
			} else {
				script = append(script, edit{kind: OpInsert, line: other[prevY]})
			}
		}
		x, y = prevX, prevY
	}

	reverse(script)
	return script
}

func reverse(script []edit) {
	for i, j := 0, len(script)-1; i < j; i, j = i+1, j-1 {
		script[i], script[j] = script[j], script[i]
	}
}

package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Violation describes one broken board invariant.
type Violation struct {
	Rule     int
	ColumnID string
	TaskID   string
	Detail   string
}

func (v Violation) String() string {
	return fmt.Sprintf("rule %d: %s", v.Rule, v.Detail)
}

// Violations is the list returned by CheckInvariants. It implements error so
// callers can log or wrap it directly.
type Violations []Violation

func (vs Violations) Error() string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "board invariants violated: " + strings.Join(parts, "; ")
}

// CheckInvariants validates the board against the data model rules:
//
//  1. every task is listed by exactly one column and its columnId names that column
//  2. every listed id has a task
//  3. column ids are unique and belong to the fixed set
//
// It returns nil when the board is consistent.
func CheckInvariants(b Board) Violations {
	var out Violations

	seenCols := make(map[string]bool, len(b.Columns))
	for _, c := range b.Columns {
		if seenCols[c.ID] {
			out = append(out, Violation{Rule: 3, ColumnID: c.ID, Detail: fmt.Sprintf("duplicate column %q", c.ID)})
		}
		seenCols[c.ID] = true
		if !IsKnownColumn(c.ID) {
			out = append(out, Violation{Rule: 3, ColumnID: c.ID, Detail: fmt.Sprintf("unknown column %q", c.ID)})
		}
	}

	listedIn := make(map[string][]string, len(b.Tasks))
	for _, c := range b.Columns {
		for _, id := range c.TaskIDs {
			listedIn[id] = append(listedIn[id], c.ID)
			if _, ok := b.Tasks[id]; !ok {
				out = append(out, Violation{Rule: 2, ColumnID: c.ID, TaskID: id, Detail: fmt.Sprintf("column %q lists missing task %q", c.ID, id)})
			}
		}
	}

	for id, t := range b.Tasks {
		if t.ID != id {
			out = append(out, Violation{Rule: 3, TaskID: id, Detail: fmt.Sprintf("task keyed %q carries id %q", id, t.ID)})
		}
		cols := listedIn[id]
		switch {
		case len(cols) == 0:
			out = append(out, Violation{Rule: 1, TaskID: id, Detail: fmt.Sprintf("task %q is not listed by any column", id)})
		case len(cols) > 1:
			out = append(out, Violation{Rule: 1, TaskID: id, Detail: fmt.Sprintf("task %q listed %d times (%s)", id, len(cols), strings.Join(cols, ","))})
		case cols[0] != t.ColumnID:
			out = append(out, Violation{Rule: 1, ColumnID: cols[0], TaskID: id, Detail: fmt.Sprintf("task %q has columnId %q but is listed by %q", id, t.ColumnID, cols[0])})
		}
	}
	return out
}

// CheckCollection validates that the current id, when set, names a board of
// the collection, and that every board in it is consistent.
func CheckCollection(c Collection) Violations {
	var out Violations
	if c.Current != "" {
		if _, ok := c.Find(c.Current); !ok {
			out = append(out, Violation{Rule: 4, Detail: fmt.Sprintf("current board %q is not in the collection", c.Current)})
		}
	}
	for _, b := range c.Boards {
		out = append(out, CheckInvariants(b)...)
	}
	return out
}

// Repair returns a copy of b that satisfies the invariants. It back-fills a
// missing layout or task map, drops dangling and duplicate ids, and appends
// unlisted tasks to the column named by their columnId (or the first column).
// Used when loading documents that may have been partially written.
func Repair(b Board) Board {
	out := b.Clone()
	if out.Tasks == nil {
		out.Tasks = map[string]Task{}
	}
	if len(out.Columns) == 0 {
		out.Columns = DefaultColumns()
	}

	listed := make(map[string]bool, len(out.Tasks))
	for i := range out.Columns {
		c := &out.Columns[i]
		ids := make([]string, 0, len(c.TaskIDs))
		for _, id := range c.TaskIDs {
			t, ok := out.Tasks[id]
			if !ok || listed[id] {
				continue
			}
			listed[id] = true
			ids = append(ids, id)
			if t.ColumnID != c.ID {
				t.ColumnID = c.ID
				out.Tasks[id] = t
			}
		}
		c.TaskIDs = ids
	}

	orphans := make([]Task, 0)
	for id, t := range out.Tasks {
		if t.ID != id {
			t.ID = id
			out.Tasks[id] = t
		}
		if !listed[id] {
			orphans = append(orphans, t)
		}
	}
	sortTasksByCreation(orphans)
	for _, t := range orphans {
		idx := out.ColumnIndex(t.ColumnID)
		if idx < 0 {
			idx = 0
			t.ColumnID = out.Columns[0].ID
			out.Tasks[t.ID] = t
		}
		out.Columns[idx].TaskIDs = append(out.Columns[idx].TaskIDs, t.ID)
	}
	return out
}

func sortTasksByCreation(tasks []Task) {
	slices.SortFunc(tasks, func(a, b Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

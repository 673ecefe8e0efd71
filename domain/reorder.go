package domain

import (
	"fmt"
	"slices"
)

// MoveWithinColumn moves the task id at fromIndex to toIndex inside one
// column using array-move semantics (toIndex is a post-removal index). The
// input board is returned unchanged when the indexes are equal, either index
// is out of bounds, or the column does not exist.
func MoveWithinColumn(b Board, columnID string, fromIndex, toIndex int) Board {
	idx := b.ColumnIndex(columnID)
	if idx < 0 || fromIndex == toIndex {
		return b
	}
	ids := b.Columns[idx].TaskIDs
	if fromIndex < 0 || fromIndex >= len(ids) || toIndex < 0 || toIndex >= len(ids) {
		return b
	}

	out := b.Clone()
	col := &out.Columns[idx]
	id := col.TaskIDs[fromIndex]
	col.TaskIDs = slices.Delete(col.TaskIDs, fromIndex, fromIndex+1)
	col.TaskIDs = slices.Insert(col.TaskIDs, toIndex, id)
	return out
}

// MoveAcrossColumns removes taskID from the source column and inserts it into
// the destination column at destIndex, clamped to [0, len]. The task's
// columnId follows the move.
func MoveAcrossColumns(b Board, taskID, sourceColumnID, destColumnID string, destIndex int) (Board, error) {
	src := b.ColumnIndex(sourceColumnID)
	if src < 0 {
		return b, fmt.Errorf("%w: unknown source column %q", ErrInvalidMove, sourceColumnID)
	}
	dst := b.ColumnIndex(destColumnID)
	if dst < 0 {
		return b, fmt.Errorf("%w: unknown destination column %q", ErrInvalidMove, destColumnID)
	}
	pos := slices.Index(b.Columns[src].TaskIDs, taskID)
	if pos < 0 {
		return b, fmt.Errorf("%w: task %q is not in column %q", ErrInvalidMove, taskID, sourceColumnID)
	}
	task, ok := b.Tasks[taskID]
	if !ok {
		return b, fmt.Errorf("%w: task %q does not exist", ErrInvalidMove, taskID)
	}

	out := b.Clone()
	out.Columns[src].TaskIDs = slices.Delete(out.Columns[src].TaskIDs, pos, pos+1)

	dstIDs := out.Columns[dst].TaskIDs
	destIndex = max(0, min(destIndex, len(dstIDs)))
	out.Columns[dst].TaskIDs = slices.Insert(dstIDs, destIndex, taskID)

	task.ColumnID = destColumnID
	out.Tasks[taskID] = task
	return out, nil
}

// Drop is a drag-and-drop gesture: the dragged task and the id of whatever it
// was released over, either a column (its header or empty area) or another
// task.
type Drop struct {
	TaskID string `json:"taskId"`
	OverID string `json:"overId"`
}

// ApplyDrop resolves a drop into a move. Dropping onto a column appends to the
// end of that column. Dropping onto a task inserts immediately before that
// task, using its index after the dragged task has been removed. Dropping a
// task onto itself leaves the board unchanged.
func ApplyDrop(b Board, d Drop) (Board, error) {
	src, from := b.Locate(d.TaskID)
	if src < 0 {
		return b, fmt.Errorf("%w: task %q is not on the board", ErrInvalidMove, d.TaskID)
	}
	if d.OverID == d.TaskID {
		return b, nil
	}
	srcID := b.Columns[src].ID

	if dst := b.ColumnIndex(d.OverID); dst >= 0 {
		if dst == src {
			return MoveWithinColumn(b, srcID, from, len(b.Columns[src].TaskIDs)-1), nil
		}
		return MoveAcrossColumns(b, d.TaskID, srcID, d.OverID, len(b.Columns[dst].TaskIDs))
	}

	dst, target := b.Locate(d.OverID)
	if dst < 0 {
		return b, fmt.Errorf("%w: drop target %q is neither a column nor a task", ErrInvalidMove, d.OverID)
	}
	if dst == src {
		if target > from {
			target--
		}
		return MoveWithinColumn(b, srcID, from, target), nil
	}
	return MoveAcrossColumns(b, d.TaskID, srcID, b.Columns[dst].ID, target)
}

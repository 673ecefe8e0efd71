package domain

import (
	"maps"
	"slices"
	"time"
)

// Column ids of the fixed board layout.
const (
	ColumnTodo       = "todo"
	ColumnInProgress = "inprogress"
	ColumnStuck      = "stuck"
	ColumnDone       = "done"
)

// Task represents a single card on a board.
type Task struct {
	ID        string     `json:"id"`
	Content   string     `json:"content"`
	ColumnID  string     `json:"columnId"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Column is a lane holding an ordered list of task ids, top to bottom.
type Column struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	TaskIDs []string `json:"taskIds"`
}

// Board is a named kanban workspace owned by one user.
type Board struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Columns     []Column        `json:"columns"`
	Tasks       map[string]Task `json:"tasks"`
	UserID      string          `json:"userId"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastUpdated *time.Time      `json:"lastUpdated,omitempty"`
}

// DefaultColumns returns the canonical empty four-column layout.
func DefaultColumns() []Column {
	return []Column{
		{ID: ColumnTodo, Title: "To Do", TaskIDs: []string{}},
		{ID: ColumnInProgress, Title: "In Progress", TaskIDs: []string{}},
		{ID: ColumnStuck, Title: "Stuck", TaskIDs: []string{}},
		{ID: ColumnDone, Title: "Done", TaskIDs: []string{}},
	}
}

// IsKnownColumn reports whether id belongs to the fixed column set.
func IsKnownColumn(id string) bool {
	switch id {
	case ColumnTodo, ColumnInProgress, ColumnStuck, ColumnDone:
		return true
	}
	return false
}

// NewBoard creates an empty board with the default layout.
func NewBoard(id, title, userID string, createdAt time.Time) Board {
	return Board{
		ID:        id,
		Title:     title,
		Columns:   DefaultColumns(),
		Tasks:     map[string]Task{},
		UserID:    userID,
		CreatedAt: createdAt,
	}
}

// Clone returns a deep copy of b. Nil slices and maps stay nil.
func (b Board) Clone() Board {
	out := b
	if b.Columns != nil {
		out.Columns = make([]Column, len(b.Columns))
		for i, c := range b.Columns {
			c.TaskIDs = slices.Clone(c.TaskIDs)
			out.Columns[i] = c
		}
	}
	out.Tasks = maps.Clone(b.Tasks)
	for id, t := range out.Tasks {
		if t.UpdatedAt != nil {
			ts := *t.UpdatedAt
			t.UpdatedAt = &ts
			out.Tasks[id] = t
		}
	}
	if b.LastUpdated != nil {
		ts := *b.LastUpdated
		out.LastUpdated = &ts
	}
	return out
}

// ColumnIndex returns the position of the column with the given id, or -1.
func (b Board) ColumnIndex(id string) int {
	for i, c := range b.Columns {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Locate finds the column listing taskID and the task's position within it.
// Both results are -1 when no column lists the task.
func (b Board) Locate(taskID string) (column, position int) {
	for i, c := range b.Columns {
		if p := slices.Index(c.TaskIDs, taskID); p >= 0 {
			return i, p
		}
	}
	return -1, -1
}

// ColumnTasks resolves the ordered tasks of a column, skipping dangling ids.
func (b Board) ColumnTasks(columnID string) []Task {
	idx := b.ColumnIndex(columnID)
	if idx < 0 {
		return nil
	}
	ids := b.Columns[idx].TaskIDs
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := b.Tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

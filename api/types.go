package api

import (
	"time"

	"prism-board/boards"
	"prism-board/domain"
	"prism-board/identity"
)

const maxBodySize = 64 << 10

type columnView struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	TaskCount int           `json:"taskCount"`
	Tasks     []domain.Task `json:"tasks"`
}

type boardView struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Columns     []columnView `json:"columns"`
	CreatedAt   time.Time    `json:"createdAt"`
	LastUpdated *time.Time   `json:"lastUpdated,omitempty"`
}

type warningView struct {
	BoardID string    `json:"boardId"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type boardsResponse struct {
	Boards  []boardView  `json:"boards"`
	Current string       `json:"current,omitempty"`
	Warning *warningView `json:"warning,omitempty"`
}

type sessionResponse struct {
	Identity identity.Identity `json:"identity"`
	boardsResponse
}

type taskResponse struct {
	Task  domain.Task `json:"task"`
	Board boardView   `json:"board"`
}

type errorResponse struct {
	Error string     `json:"error"`
	Board *boardView `json:"board,omitempty"`
}

type createBoardRequest struct {
	Title string `json:"title"`
}

type switchBoardRequest struct {
	BoardID string `json:"boardId"`
}

type createTaskRequest struct {
	ColumnID string `json:"columnId"`
	Content  string `json:"content"`
}

type editTaskRequest struct {
	Content string `json:"content"`
}

// moveTaskRequest carries either a drop target (OverID) or an explicit
// destination column and index.
type moveTaskRequest struct {
	OverID   string `json:"overId,omitempty"`
	ColumnID string `json:"columnId,omitempty"`
	Index    *int   `json:"index,omitempty"`
}

func newBoardView(b domain.Board) boardView {
	v := boardView{
		ID:          b.ID,
		Title:       b.Title,
		Columns:     make([]columnView, len(b.Columns)),
		CreatedAt:   b.CreatedAt,
		LastUpdated: b.LastUpdated,
	}
	for i, col := range b.Columns {
		tasks := b.ColumnTasks(col.ID)
		if tasks == nil {
			tasks = []domain.Task{}
		}
		v.Columns[i] = columnView{ID: col.ID, Title: col.Title, TaskCount: len(col.TaskIDs), Tasks: tasks}
	}
	return v
}

func newBoardsResponse(store *boards.Store) boardsResponse {
	coll := store.Collection()
	resp := boardsResponse{Boards: make([]boardView, len(coll.Boards)), Current: coll.Current}
	for i, b := range coll.Boards {
		resp.Boards[i] = newBoardView(b)
	}
	if w, ok := store.Warning(); ok {
		resp.Warning = &warningView{BoardID: w.BoardID, Message: w.Err.Error(), At: w.At}
	}
	return resp
}

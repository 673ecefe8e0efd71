package domain

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"slices"
	"testing"
	"time"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// boardWith builds a board whose todo column lists ids in order.
func boardWith(ids ...string) Board {
	b := NewBoard("b1", "Work", "u1", t0)
	for i, id := range ids {
		b.Tasks[id] = Task{ID: id, Content: "task " + id, ColumnID: ColumnTodo, CreatedAt: t0.Add(time.Duration(i) * time.Minute)}
		b.Columns[0].TaskIDs = append(b.Columns[0].TaskIDs, id)
	}
	return b
}

func idsOf(b Board, columnID string) []string {
	return b.Columns[b.ColumnIndex(columnID)].TaskIDs
}

func TestMoveWithinColumnScenario(t *testing.T) {
	b := boardWith("t1", "t2", "t3")
	got := MoveWithinColumn(b, ColumnTodo, 0, 2)
	if want := []string{"t2", "t3", "t1"}; !slices.Equal(idsOf(got, ColumnTodo), want) {
		t.Fatalf("expected %v got %v", want, idsOf(got, ColumnTodo))
	}
	if !slices.Equal(idsOf(b, ColumnTodo), []string{"t1", "t2", "t3"}) {
		t.Fatalf("input mutated: %v", idsOf(b, ColumnTodo))
	}

	moved, err := MoveAcrossColumns(got, "t2", ColumnTodo, ColumnDone, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !slices.Equal(idsOf(moved, ColumnTodo), []string{"t3", "t1"}) {
		t.Fatalf("unexpected todo %v", idsOf(moved, ColumnTodo))
	}
	if !slices.Equal(idsOf(moved, ColumnDone), []string{"t2"}) {
		t.Fatalf("unexpected done %v", idsOf(moved, ColumnDone))
	}
	if moved.Tasks["t2"].ColumnID != ColumnDone {
		t.Fatalf("columnId not updated: %#v", moved.Tasks["t2"])
	}
	if got.Tasks["t2"].ColumnID != ColumnTodo {
		t.Fatalf("input task mutated")
	}
	if v := CheckInvariants(moved); v != nil {
		t.Fatalf("invariants: %v", v)
	}
}

func TestMoveWithinColumnNoops(t *testing.T) {
	b := boardWith("t1", "t2", "t3")
	cases := []struct {
		name     string
		col      string
		from, to int
	}{
		{"same index", ColumnTodo, 1, 1},
		{"from out of range", ColumnTodo, 3, 0},
		{"to out of range", ColumnTodo, 0, 3},
		{"negative", ColumnTodo, -1, 0},
		{"unknown column", "backlog", 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MoveWithinColumn(b, tc.col, tc.from, tc.to)
			if !reflect.DeepEqual(got, b) {
				t.Fatalf("expected unchanged board, got %v", idsOf(got, ColumnTodo))
			}
		})
	}
}

func TestMoveWithinColumnIdempotent(t *testing.T) {
	b := boardWith("a", "b", "c", "d")
	for i := range 4 {
		if got := MoveWithinColumn(b, ColumnTodo, i, i); !reflect.DeepEqual(got, b) {
			t.Fatalf("index %d: board changed", i)
		}
	}
}

func TestMoveAcrossColumnsClampsIndex(t *testing.T) {
	b := boardWith("t1", "t2", "t3")
	b, _ = MoveAcrossColumns(b, "t1", ColumnTodo, ColumnDone, 0)
	b, err := MoveAcrossColumns(b, "t2", ColumnTodo, ColumnDone, 99)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !slices.Equal(idsOf(b, ColumnDone), []string{"t1", "t2"}) {
		t.Fatalf("index past the end should append, got %v", idsOf(b, ColumnDone))
	}

	b, err = MoveAcrossColumns(b, "t3", ColumnTodo, ColumnDone, -5)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !slices.Equal(idsOf(b, ColumnDone), []string{"t3", "t1", "t2"}) {
		t.Fatalf("negative index should insert at the top, got %v", idsOf(b, ColumnDone))
	}
	if len(idsOf(b, ColumnTodo)) != 0 {
		t.Fatalf("todo not empty: %v", idsOf(b, ColumnTodo))
	}
}

func TestMoveAcrossColumnsErrors(t *testing.T) {
	b := boardWith("t1")
	cases := []struct {
		name          string
		task, src, dst string
	}{
		{"task not in source", "t1", ColumnStuck, ColumnDone},
		{"missing task", "nope", ColumnTodo, ColumnDone},
		{"unknown source", "t1", "backlog", ColumnDone},
		{"unknown destination", "t1", ColumnTodo, "archive"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MoveAcrossColumns(b, tc.task, tc.src, tc.dst, 0)
			if !errors.Is(err, ErrInvalidMove) {
				t.Fatalf("expected ErrInvalidMove, got %v", err)
			}
			if !reflect.DeepEqual(got, b) {
				t.Fatalf("board changed on invalid move")
			}
		})
	}
}

func TestMoveAcrossColumnsPreservesCount(t *testing.T) {
	b := boardWith("t1", "t2", "t3")
	got, err := MoveAcrossColumns(b, "t3", ColumnTodo, ColumnStuck, 0)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if len(got.Tasks) != len(b.Tasks) {
		t.Fatalf("expected %d tasks got %d", len(b.Tasks), len(got.Tasks))
	}
	listed := 0
	for _, c := range got.Columns {
		for _, id := range c.TaskIDs {
			if id == "t3" {
				listed++
			}
		}
	}
	if listed != 1 {
		t.Fatalf("t3 listed %d times", listed)
	}
}

func TestApplyDrop(t *testing.T) {
	base := boardWith("t1", "t2", "t3")
	base, _ = MoveAcrossColumns(base, "t3", ColumnTodo, ColumnDone, 0)
	// todo=[t1,t2] done=[t3]

	cases := []struct {
		name     string
		drop     Drop
		wantTodo []string
		wantDone []string
	}{
		{"onto own column header", Drop{TaskID: "t1", OverID: ColumnTodo}, []string{"t2", "t1"}, []string{"t3"}},
		{"onto other column header", Drop{TaskID: "t1", OverID: ColumnDone}, []string{"t2"}, []string{"t3", "t1"}},
		{"onto task below", Drop{TaskID: "t1", OverID: "t2"}, []string{"t1", "t2"}, []string{"t3"}},
		{"onto task above", Drop{TaskID: "t2", OverID: "t1"}, []string{"t2", "t1"}, []string{"t3"}},
		{"onto task in other column", Drop{TaskID: "t2", OverID: "t3"}, []string{"t1"}, []string{"t2", "t3"}},
		{"onto itself", Drop{TaskID: "t2", OverID: "t2"}, []string{"t1", "t2"}, []string{"t3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyDrop(base, tc.drop)
			if err != nil {
				t.Fatalf("drop: %v", err)
			}
			if !slices.Equal(idsOf(got, ColumnTodo), tc.wantTodo) || !slices.Equal(idsOf(got, ColumnDone), tc.wantDone) {
				t.Fatalf("got todo=%v done=%v", idsOf(got, ColumnTodo), idsOf(got, ColumnDone))
			}
			if v := CheckInvariants(got); v != nil {
				t.Fatalf("invariants: %v", v)
			}
		})
	}
}

func TestApplyDropUnknownTarget(t *testing.T) {
	b := boardWith("t1")
	if _, err := ApplyDrop(b, Drop{TaskID: "t1", OverID: "nowhere"}); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
	if _, err := ApplyDrop(b, Drop{TaskID: "ghost", OverID: ColumnDone}); !errors.Is(err, ErrInvalidMove) {
		t.Fatalf("expected ErrInvalidMove, got %v", err)
	}
}

func TestRandomMovesKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := NewBoard("b1", "Random", "u1", t0)
	cols := []string{ColumnTodo, ColumnInProgress, ColumnStuck, ColumnDone}
	for i := range 12 {
		id := fmt.Sprintf("t%d", i)
		col := cols[rng.Intn(len(cols))]
		b.Tasks[id] = Task{ID: id, Content: id, ColumnID: col, CreatedAt: t0}
		idx := b.ColumnIndex(col)
		b.Columns[idx].TaskIDs = append(b.Columns[idx].TaskIDs, id)
	}

	for step := range 500 {
		id := fmt.Sprintf("t%d", rng.Intn(12))
		src, pos := b.Locate(id)
		switch rng.Intn(3) {
		case 0:
			n := len(b.Columns[src].TaskIDs)
			b = MoveWithinColumn(b, b.Columns[src].ID, pos, rng.Intn(n+1)-1)
		case 1:
			next, err := MoveAcrossColumns(b, id, b.Columns[src].ID, cols[rng.Intn(len(cols))], rng.Intn(8)-2)
			if err != nil {
				t.Fatalf("step %d: %v", step, err)
			}
			b = next
		default:
			over := cols[rng.Intn(len(cols))]
			if rng.Intn(2) == 0 {
				over = fmt.Sprintf("t%d", rng.Intn(12))
			}
			next, err := ApplyDrop(b, Drop{TaskID: id, OverID: over})
			if err != nil {
				t.Fatalf("step %d: %v", step, err)
			}
			b = next
		}
		if v := CheckInvariants(b); v != nil {
			t.Fatalf("step %d: %v", step, v)
		}
		if len(b.Tasks) != 12 {
			t.Fatalf("step %d: task count %d", step, len(b.Tasks))
		}
	}
}

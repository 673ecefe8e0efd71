package domain

import "time"

// BoardDocument is the persisted shape of a board. Gateways store it as a
// single record keyed by (UserID, ID) and upsert it with merge semantics.
type BoardDocument struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Columns     []Column        `json:"columns"`
	Tasks       map[string]Task `json:"tasks"`
	UserID      string          `json:"userId"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastUpdated *time.Time      `json:"lastUpdated,omitempty"`
}

// ToDocument converts a board to its persisted form. The document does not
// share memory with b.
func ToDocument(b Board) BoardDocument {
	c := b.Clone()
	return BoardDocument{
		ID:          c.ID,
		Title:       c.Title,
		Columns:     c.Columns,
		Tasks:       c.Tasks,
		UserID:      c.UserID,
		CreatedAt:   c.CreatedAt,
		LastUpdated: c.LastUpdated,
	}
}

// FromDocument parses a stored document back into a board. Missing columns
// or tasks are back-filled with the empty default layout; use Repair for
// documents whose lists may disagree with the task map.
func FromDocument(d BoardDocument) Board {
	b := Board{
		ID:          d.ID,
		Title:       d.Title,
		Columns:     d.Columns,
		Tasks:       d.Tasks,
		UserID:      d.UserID,
		CreatedAt:   d.CreatedAt,
		LastUpdated: d.LastUpdated,
	}.Clone()
	if len(b.Columns) == 0 {
		b.Columns = DefaultColumns()
	}
	for i := range b.Columns {
		if b.Columns[i].TaskIDs == nil {
			b.Columns[i].TaskIDs = []string{}
		}
	}
	if b.Tasks == nil {
		b.Tasks = map[string]Task{}
	}
	return b
}

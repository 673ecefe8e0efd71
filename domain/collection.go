package domain

// Collection is the ordered set of a user's boards plus the active board id.
// Current is empty when no board is active.
type Collection struct {
	Boards  []Board `json:"boards"`
	Current string  `json:"current,omitempty"`
}

// Find returns the board with the given id.
func (c Collection) Find(id string) (Board, bool) {
	for _, b := range c.Boards {
		if b.ID == id {
			return b, true
		}
	}
	return Board{}, false
}

// CurrentBoard returns the active board, if any.
func (c Collection) CurrentBoard() (Board, bool) {
	if c.Current == "" {
		return Board{}, false
	}
	return c.Find(c.Current)
}

package engine

// Intent is a user-level ordering change handed to Engine.Apply.
type Intent interface {
	isIntent()
}

// MoveCardIntent places a card at Index of TargetListID, counted without the
// card itself. A target equal to the card's current list is a reorder.
type MoveCardIntent struct {
	CardID       string
	TargetListID string
	Index        int
}

// ReorderListIntent places a list at Index among the board's lists, counted
// without the list itself.
type ReorderListIntent struct {
	ListID string
	Index  int
}

func (MoveCardIntent) isIntent()    {}
func (ReorderListIntent) isIntent() {}

package session

import "querybot/internal/models"

// Window keeps the k most recent turns of a conversation.
type Window struct {
	size  int
	turns []models.Turn
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, turns: make([]models.Turn, 0, size)}
}

// Append adds a turn, evicting the oldest one when the window is full.
func (w *Window) Append(turn models.Turn) {
	if len(w.turns) == w.size {
		copy(w.turns, w.turns[1:])
		w.turns = w.turns[:w.size-1]
	}
	w.turns = append(w.turns, turn)
}

// Turns returns a copy of the window, oldest first.
func (w *Window) Turns() []models.Turn {
	out := make([]models.Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

func (w *Window) Len() int {
	return len(w.turns)
}

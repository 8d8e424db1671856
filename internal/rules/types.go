package rules

import "errors"

// Side identifies a seat and the side to move.
type Side string

const (
	White Side = "w"
	Black Side = "b"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == White {
		return Black
	}
	return White
}

// Valid reports whether s names a real side.
func (s Side) Valid() bool { return s == White || s == Black }

// Label is the display fallback used when a seat has no name.
func (s Side) Label() string {
	if s == Black {
		return "Black"
	}
	return "White"
}

// MoveRequest is a move as submitted by a client.
type MoveRequest struct {
	From      string
	To        string
	Promotion string
}

// Verdict is the oracle's view of a position after a move.
type Verdict struct {
	Over      bool
	Checkmate bool
	Draw      bool
	// Winner is empty unless Checkmate.
	Winner Side
	// Method is a human readable termination method, e.g. "Stalemate".
	Method string
}

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrBadSquare   = errors.New("invalid square")
)

// Package chessgame wraps github.com/notnil/chess with the UCI/FEN surface
// and legality rules the session layer depends on.
package chessgame

import "errors"

// Sentinel errors surfaced through tool results as JSON-RPC error data.
var (
	// ErrIllegalMove is returned when a UCI move is not a member of the
	// current legal-move set.
	ErrIllegalMove = errors.New("illegal move")

	// ErrParse is returned when a UCI or FEN string is malformed.
	ErrParse = errors.New("parse error")
)

// IllegalMoveError carries the legal-move list so a caller can recover.
type IllegalMoveError struct {
	Move        string
	LegalMoves  []string
	Explanation string
}

func (e *IllegalMoveError) Error() string {
	if e.Explanation != "" {
		return e.Explanation
	}
	return "illegal move: " + e.Move
}

func (e *IllegalMoveError) Unwrap() error { return ErrIllegalMove }

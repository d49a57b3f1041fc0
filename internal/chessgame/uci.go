package chessgame

import "fmt"

// Move is a coordinate-only move descriptor, independent of any board
// position. It is used for syntactic UCI validation ahead of legality
// checking, which always happens against a specific GameState.
type Move struct {
	From, To  string
	Promotion byte // 0 or one of 'q','r','b','n'
}

// ParseUCI parses a 4- or 5-character UCI string ("e2e4", "e7e8q") into its
// from/to squares and optional promotion piece. It does not consult any
// board state, so it cannot by itself determine legality.
func ParseUCI(s string) (Move, error) {
	if !uciPattern.MatchString(s) {
		return Move{}, fmt.Errorf("%w: malformed uci %q", ErrParse, s)
	}
	m := Move{From: s[0:2], To: s[2:4]}
	if len(s) == 5 {
		m.Promotion = s[4]
	}
	return m, nil
}

// FormatUCI renders a Move back to its UCI string, the inverse of ParseUCI.
func (m Move) FormatUCI() string {
	s := m.From + m.To
	if m.Promotion != 0 {
		s += string(m.Promotion)
	}
	return s
}

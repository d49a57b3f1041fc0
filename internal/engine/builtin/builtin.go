// Package builtin provides deterministic, dependency-free stand-ins for the
// twelve named AI engines. They exist only so the server has something to
// dispatch to in tests and local runs; the spec treats the real engines
// (AlphaZero, LeelaChessZero, ...) as external collaborators satisfying the
// engine.ChessEngine interface, and none of these stand-ins claim to
// reproduce their play strength.
package builtin

import (
	"context"
	"math/rand"
	"time"

	"github.com/kadirpekel/chessmcp/internal/chessgame"
)

// RandomMover plays a uniformly random legal move. Useful as a filler for
// any of the twelve engine slots in tests.
type RandomMover struct {
	rng *rand.Rand
}

// NewRandomMover returns a RandomMover seeded from the current time.
func NewRandomMover() *RandomMover {
	return &RandomMover{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (e *RandomMover) Search(ctx context.Context, state *chessgame.GameState, difficulty int, deadline time.Time) (string, error) {
	moves := state.LegalMoves()
	if len(moves) == 0 {
		return "", nil
	}
	return moves[e.rng.Intn(len(moves))], nil
}

// GreedyCapture prefers a move that lands on an occupied square (a capture)
// and otherwise falls back to a random legal move. It is a shallow,
// single-ply heuristic, not a search.
type GreedyCapture struct {
	rng *rand.Rand
}

func NewGreedyCapture() *GreedyCapture {
	return &GreedyCapture{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (e *GreedyCapture) Search(ctx context.Context, state *chessgame.GameState, difficulty int, deadline time.Time) (string, error) {
	moves := state.LegalMoves()
	if len(moves) == 0 {
		return "", nil
	}
	board := state.Board()
	var captures []string
	for _, uci := range moves {
		to := uci[2:4]
		row, col := squareToRowCol(to)
		if board[row][col] != "." {
			captures = append(captures, uci)
		}
	}
	if len(captures) > 0 {
		return captures[e.rng.Intn(len(captures))], nil
	}
	return moves[e.rng.Intn(len(moves))], nil
}

func squareToRowCol(sq string) (row, col int) {
	file := int(sq[0] - 'a')
	rank := int(sq[1] - '0')
	return 8 - rank, file
}

// ShallowNegamax runs a material-only negamax search to a small fixed
// depth, respecting the deadline by checking the context between root
// moves. It exists to give the neural-pool engine slots (as cmd/chessmcp
// wires them) something resembling a tree-search workload without pulling
// in a real engine dependency.
type ShallowNegamax struct {
	MaxDepth int
}

func NewShallowNegamax() *ShallowNegamax {
	return &ShallowNegamax{MaxDepth: 2}
}

func (e *ShallowNegamax) Search(ctx context.Context, state *chessgame.GameState, difficulty int, deadline time.Time) (string, error) {
	moves := state.LegalMoves()
	if len(moves) == 0 {
		return "", nil
	}

	depth := e.MaxDepth
	if difficulty >= 7 {
		depth++
	}

	best := moves[0]
	bestScore := -1 << 30
	for _, uci := range moves {
		select {
		case <-ctx.Done():
			return best, nil
		default:
		}
		if time.Now().After(deadline) {
			return best, nil
		}
		clone := state.Clone()
		if err := clone.Apply(uci); err != nil {
			continue
		}
		score := -negamax(clone, depth-1, deadline)
		if score > bestScore {
			bestScore = score
			best = uci
		}
	}
	return best, nil
}

func negamax(state *chessgame.GameState, depth int, deadline time.Time) int {
	if status, terminal := state.Outcome(); terminal {
		switch status {
		case chessgame.StatusDraw:
			return 0
		default:
			return -100000
		}
	}
	if depth == 0 || time.Now().After(deadline) {
		return materialScore(state)
	}
	moves := state.LegalMoves()
	best := -1 << 30
	for _, uci := range moves {
		clone := state.Clone()
		if err := clone.Apply(uci); err != nil {
			continue
		}
		score := -negamax(clone, depth-1, deadline)
		if score > best {
			best = score
		}
	}
	return best
}

var pieceValue = map[byte]int{
	'p': 100, 'n': 320, 'b': 330, 'r': 500, 'q': 900, 'k': 0,
}

func materialScore(state *chessgame.GameState) int {
	board := state.Board()
	score := 0
	sideIsWhite := state.SideToMove() == "white"
	for _, row := range board {
		for _, cell := range row {
			if cell == "." {
				continue
			}
			isUpper := cell[0] >= 'A' && cell[0] <= 'Z'
			lower := cell[0]
			if isUpper {
				lower = cell[0] - 'A' + 'a'
			}
			v := pieceValue[lower]
			if isUpper == sideIsWhite {
				score += v
			} else {
				score -= v
			}
		}
	}
	return score
}

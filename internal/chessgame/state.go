package chessgame

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/notnil/chess"
)

var uciPattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// Status mirrors the spec's gameStatus enum. Terminal values are absorbing.
type Status string

const (
	StatusActive    Status = "active"
	StatusWhiteWins Status = "white_wins"
	StatusBlackWins Status = "black_wins"
	StatusDraw      Status = "draw"
	StatusResigned  Status = "resigned"
)

// GameState owns one notnil/chess.Game and exposes it through the UCI/FEN
// surface the rest of the server depends on. It holds no lock of its own:
// Session is responsible for serializing access.
type GameState struct {
	game *chess.Game
}

// NewGameState returns a GameState at the standard starting position.
func NewGameState() *GameState {
	return &GameState{game: chess.NewGame()}
}

// ParseFEN constructs a GameState from a FEN string. Errors are wrapped in
// ErrParse so callers can translate them to JSON-RPC -32700/-32602.
func ParseFEN(fen string) (*GameState, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return &GameState{game: chess.NewGame(opt)}, nil
}

// FEN renders the current position, including side-to-move, castling
// rights, en-passant target, and move counters.
func (g *GameState) FEN() string {
	return g.game.Position().String()
}

// Clone returns an independent copy safe for read-only analysis work
// (EngineDispatcher reads) without holding the session lock.
func (g *GameState) Clone() *GameState {
	clone, err := ParseFEN(g.FEN())
	if err != nil {
		// The source position is always valid, so this can't happen in
		// practice; fall back to a fresh game rather than panic.
		return NewGameState()
	}
	return clone
}

// SideToMove returns "white" or "black".
func (g *GameState) SideToMove() string {
	if g.game.Position().Turn() == chess.White {
		return "white"
	}
	return "black"
}

// MovesPlayed returns the number of half-moves applied so far.
func (g *GameState) MovesPlayed() int {
	return len(g.game.Moves())
}

// LegalMoves returns every legal move from the current position, encoded
// as UCI strings (e2e4, e7e8q, ...).
func (g *GameState) LegalMoves() []string {
	valid := g.game.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, m := range valid {
		out = append(out, formatUCI(m))
	}
	return out
}

// IsLegal reports whether uci names one of the current legal moves.
func (g *GameState) IsLegal(uci string) bool {
	_, ok := g.findMove(uci)
	return ok
}

// Apply validates and plays uci, mutating the receiver in place. It returns
// an *IllegalMoveError (wrapping ErrIllegalMove) carrying the current legal
// move list when uci is not legal.
func (g *GameState) Apply(uci string) error {
	if !uciPattern.MatchString(uci) {
		return fmt.Errorf("%w: malformed uci %q", ErrParse, uci)
	}
	mv, ok := g.findMove(uci)
	if !ok {
		return &IllegalMoveError{Move: uci, LegalMoves: g.LegalMoves()}
	}
	return g.game.Move(mv)
}

// TryMove composes ParseUCI/IsLegal/Apply into the single pass-through
// operation GameState exposes per §4.2.
func (g *GameState) TryMove(uci string) (ok bool, err error) {
	if err := g.Apply(uci); err != nil {
		return false, err
	}
	return true, nil
}

// InCheck reports whether the side now on move is in check, derived from
// the Check tag notnil/chess attaches to the move that produced this
// position (there is no check before the first move of a game).
func (g *GameState) InCheck() bool {
	moves := g.game.Moves()
	if len(moves) == 0 {
		return false
	}
	return moves[len(moves)-1].HasTag(chess.Check)
}

// IsCheckmate reports whether the side to move has no legal response while
// in check.
func (g *GameState) IsCheckmate() bool {
	return len(g.game.ValidMoves()) == 0 && g.InCheck()
}

// IsStalemate reports whether the side to move has no legal move and is
// not in check.
func (g *GameState) IsStalemate() bool {
	return len(g.game.ValidMoves()) == 0 && !g.InCheck()
}

// InsufficientMaterial reports whether neither side retains enough force
// to deliver checkmate under any sequence of legal moves (K vs K, K+B vs K,
// K+N vs K, K+B vs K+B same-color bishops).
func (g *GameState) InsufficientMaterial() bool {
	return insufficientMaterial(g.game.Position().Board())
}

// Outcome maps the underlying library's terminal detection onto the
// spec's Status enum. It returns (StatusActive, false) while the game is
// still in progress.
func (g *GameState) Outcome() (Status, bool) {
	outcome := g.game.Outcome()
	if outcome == chess.NoOutcome {
		return StatusActive, false
	}
	switch outcome {
	case chess.WhiteWon:
		return StatusWhiteWins, true
	case chess.BlackWon:
		return StatusBlackWins, true
	default:
		return StatusDraw, true
	}
}

// Board renders an 8x8 grid of single-character piece codes (uppercase
// white, lowercase black, '.' empty), row 0 = rank 8 per the coordinate
// convention in §4.1.
func (g *GameState) Board() [8][8]string {
	var out [8][8]string
	squareMap := g.game.Position().Board().SquareMap()
	for row := 0; row < 8; row++ {
		rank := 8 - row
		for col := 0; col < 8; col++ {
			file := col
			sq := chess.Square((rank-1)*8 + file)
			piece, ok := squareMap[sq]
			if !ok {
				out[row][col] = "."
				continue
			}
			out[row][col] = pieceCode(piece)
		}
	}
	return out
}

func pieceCode(p chess.Piece) string {
	letter := map[chess.PieceType]string{
		chess.King:   "k",
		chess.Queen:  "q",
		chess.Rook:   "r",
		chess.Bishop: "b",
		chess.Knight: "n",
		chess.Pawn:   "p",
	}[p.Type()]
	if p.Color() == chess.White {
		return strings.ToUpper(letter)
	}
	return letter
}

// findMove locates the legal move matching the given UCI string.
func (g *GameState) findMove(uci string) (*chess.Move, bool) {
	if len(uci) != 4 && len(uci) != 5 {
		return nil, false
	}
	from, to := uci[0:2], uci[2:4]
	var wantPromo chess.PieceType = chess.NoPieceType
	if len(uci) == 5 {
		wantPromo = promoFromLetter(uci[4])
		if wantPromo == chess.NoPieceType {
			return nil, false
		}
	}
	for _, mv := range g.game.ValidMoves() {
		if mv.S1().String() != from || mv.S2().String() != to {
			continue
		}
		if mv.Promo() != wantPromo {
			continue
		}
		return mv, true
	}
	return nil, false
}

func formatUCI(mv *chess.Move) string {
	s := mv.S1().String() + mv.S2().String()
	if letter := letterFromPromo(mv.Promo()); letter != "" {
		s += letter
	}
	return s
}

func promoFromLetter(b byte) chess.PieceType {
	switch b {
	case 'q':
		return chess.Queen
	case 'r':
		return chess.Rook
	case 'b':
		return chess.Bishop
	case 'n':
		return chess.Knight
	default:
		return chess.NoPieceType
	}
}

func letterFromPromo(pt chess.PieceType) string {
	switch pt {
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	default:
		return ""
	}
}

func insufficientMaterial(b *chess.Board) bool {
	squareMap := b.SquareMap()
	type counts struct {
		bishopsLight, bishopsDark int
		knights                   int
		heavy                     int // queen, rook, pawn — any of these keeps material sufficient
	}
	byColor := map[chess.Color]*counts{chess.White: {}, chess.Black: {}}
	for sq, p := range squareMap {
		if p.Type() == chess.King {
			continue
		}
		c := byColor[p.Color()]
		switch p.Type() {
		case chess.Bishop:
			if isLightSquare(sq) {
				c.bishopsLight++
			} else {
				c.bishopsDark++
			}
		case chess.Knight:
			c.knights++
		default:
			c.heavy++
		}
	}
	for _, c := range byColor {
		if c.heavy > 0 {
			return false
		}
	}
	total := func(c *counts) int { return c.bishopsLight + c.bishopsDark + c.knights }
	w, bl := byColor[chess.White], byColor[chess.Black]
	switch {
	case total(w) == 0 && total(bl) == 0:
		return true
	case total(w) == 1 && total(bl) == 0 && w.knights <= 1:
		return true
	case total(bl) == 1 && total(w) == 0 && bl.knights <= 1:
		return true
	case w.knights == 0 && bl.knights == 0 &&
		(w.bishopsLight+bl.bishopsLight == 0 || w.bishopsDark+bl.bishopsDark == 0) &&
		total(w) <= 1 && total(bl) <= 1:
		return true
	default:
		return false
	}
}

func isLightSquare(sq chess.Square) bool {
	file := int(sq) % 8
	rank := int(sq) / 8
	return (file+rank)%2 == 1
}

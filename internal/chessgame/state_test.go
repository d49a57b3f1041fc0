package chessgame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGameStateStartingFEN(t *testing.T) {
	g := NewGameState()
	assert.Equal(t, "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1", g.FEN())
	assert.Equal(t, "white", g.SideToMove())
	assert.Equal(t, 0, g.MovesPlayed())
}

func TestApplyLegalMove(t *testing.T) {
	g := NewGameState()
	require.NoError(t, g.Apply("e2e4"))
	assert.Equal(t, 1, g.MovesPlayed())
	assert.Contains(t, g.FEN(), "4P3")
	assert.Equal(t, "black", g.SideToMove())
}

func TestApplyIllegalMoveReturnsLegalMoves(t *testing.T) {
	g := NewGameState()
	err := g.Apply("e2e5")
	require.Error(t, err)
	var illegal *IllegalMoveError
	require.True(t, errors.As(err, &illegal))
	assert.Contains(t, illegal.LegalMoves, "e2e4")
	assert.NotContains(t, illegal.LegalMoves, "e2e5")
	assert.True(t, errors.Is(err, ErrIllegalMove))
}

func TestApplyMalformedUCI(t *testing.T) {
	g := NewGameState()
	err := g.Apply("zz99")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParse))
}

func TestFENRoundTrip(t *testing.T) {
	g := NewGameState()
	require.NoError(t, g.Apply("e2e4"))
	require.NoError(t, g.Apply("e7e5"))

	fen := g.FEN()
	parsed, err := ParseFEN(fen)
	require.NoError(t, err)
	assert.Equal(t, fen, parsed.FEN())
}

func TestUCIRoundTrip(t *testing.T) {
	for _, s := range []string{"e2e4", "e7e8q", "a7a8n"} {
		m, err := ParseUCI(s)
		require.NoError(t, err)
		assert.Equal(t, s, m.FormatUCI())
	}
}

func TestLegalMovesNeverLeaveOwnKingInCheck(t *testing.T) {
	g := NewGameState()
	for _, mv := range g.LegalMoves() {
		clone := g.Clone()
		require.NoError(t, clone.Apply(mv))
	}
}

func TestCheckmateFoolsMate(t *testing.T) {
	g := NewGameState()
	for _, mv := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		require.NoError(t, g.Apply(mv))
	}
	status, terminal := g.Outcome()
	require.True(t, terminal)
	assert.Equal(t, StatusBlackWins, status)
	assert.True(t, g.IsCheckmate())
}

func TestInsufficientMaterialBareKings(t *testing.T) {
	g, err := ParseFEN("8/8/8/4k3/8/8/4K3/8 w - - 0 1")
	require.NoError(t, err)
	assert.True(t, g.InsufficientMaterial())
}

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chessmcp/internal/chessgame"
)

type instantEngine struct{ move string }

func (e instantEngine) Search(ctx context.Context, state *chessgame.GameState, difficulty int, deadline time.Time) (string, error) {
	return e.move, nil
}

type neverRepliesEngine struct{}

func (neverRepliesEngine) Search(ctx context.Context, state *chessgame.GameState, difficulty int, deadline time.Time) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestDispatcherSearchReturnsEngineMove(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Stop()

	move, err := d.Search(context.Background(), "Negamax", instantEngine{move: "e2e4"}, chessgame.NewGameState(), 5)
	require.NoError(t, err)
	assert.Equal(t, "e2e4", move)
}

func TestDispatcherSearchTimesOutWithoutMutatingCaller(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Stop()

	state := chessgame.NewGameState()
	before := state.FEN()

	_, err := d.Search(context.Background(), "AlphaZero", neverRepliesEngine{}, state, 1)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, before, state.FEN())
}

func TestDispatcherLoadTracksInFlightSearches(t *testing.T) {
	d := NewDispatcher(nil)
	defer d.Stop()

	assert.Equal(t, int64(0), d.Load("Negamax"))
	_, err := d.Search(context.Background(), "Negamax", instantEngine{move: "e2e4"}, chessgame.NewGameState(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Load("Negamax"))
}

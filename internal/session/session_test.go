package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chessmcp/internal/chessgame"
	"github.com/kadirpekel/chessmcp/internal/engine"
)

// stubLookup resolves any engine name to a trivial ChessEngine, so session
// tests never depend on the real twelve-engine registry.
type stubLookup struct{}

func (stubLookup) Lookup(name string) (engine.ChessEngine, error) {
	return stubImpl{}, nil
}

type stubImpl struct{}

func (stubImpl) Search(ctx context.Context, state *chessgame.GameState, difficulty int, deadline time.Time) (string, error) {
	return "", nil
}

// stubDispatcher always plays the first legal move, making AI replies
// deterministic for assertions.
type stubDispatcher struct{}

func (stubDispatcher) Search(ctx context.Context, engineName string, impl engine.ChessEngine, state *chessgame.GameState, difficulty int) (string, error) {
	moves := state.LegalMoves()
	if len(moves) == 0 {
		return "", nil
	}
	return moves[0], nil
}

func testDeps() Deps {
	return Deps{Engines: stubLookup{}, Dispatcher: stubDispatcher{}}
}

func TestManagerCreateAssignsOwnership(t *testing.T) {
	mgr := NewManager(testDeps())
	sess, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", sess.AgentID)
	assert.Contains(t, sess.ID, "chess-session-agent-1-")

	got, err := mgr.Get("agent-1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestManagerGetCrossAgentIsUnauthorized(t *testing.T) {
	mgr := NewManager(testDeps())
	sess, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	require.NoError(t, err)

	_, err = mgr.Get("agent-2", sess.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestManagerGetUnknownSessionNotFound(t *testing.T) {
	mgr := NewManager(testDeps())
	_, err := mgr.Get("agent-1", "chess-session-agent-1-deadbeef")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerEnforcesPerAgentLimit(t *testing.T) {
	mgr := NewManager(testDeps())
	for i := 0; i < MaxSessionsPerAgent; i++ {
		_, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
		require.NoError(t, err)
	}
	_, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	assert.ErrorIs(t, err, ErrSessionLimit)
}

func TestManagerEnforcesConfiguredPerAgentLimit(t *testing.T) {
	deps := testDeps()
	deps.MaxSessionsPerAgent = 2
	mgr := NewManager(deps)

	for i := 0; i < 2; i++ {
		_, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
		require.NoError(t, err)
	}
	_, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	assert.ErrorIs(t, err, ErrSessionLimit)
}

func TestManagerEnforcesConfiguredGlobalLimit(t *testing.T) {
	deps := testDeps()
	deps.MaxSessionsGlobal = 1
	mgr := NewManager(deps)

	_, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	require.NoError(t, err)

	_, err = mgr.Create(context.Background(), "agent-2", "Negamax", "white", 5)
	assert.ErrorIs(t, err, ErrSessionLimit)
}

func TestMakeMoveRejectsIllegalMove(t *testing.T) {
	mgr := NewManager(testDeps())
	sess, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	require.NoError(t, err)

	_, err = sess.MakeMove(context.Background(), "e2e5")
	require.Error(t, err)
	var illegal *chessgame.IllegalMoveError
	require.ErrorAs(t, err, &illegal)
	assert.Contains(t, illegal.LegalMoves, "e2e4")
}

func TestMakeMoveAppliesPlayerAndAIReply(t *testing.T) {
	mgr := NewManager(testDeps())
	sess, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	require.NoError(t, err)

	result, err := sess.MakeMove(context.Background(), "e2e4")
	require.NoError(t, err)
	assert.Equal(t, "e2e4", result.PlayerMove)
	assert.NotEmpty(t, result.AIMove)
	assert.Equal(t, StatusActive, result.Status)

	snap := sess.Snapshot()
	assert.Equal(t, 2, snap.MovesPlayed)
}

func TestEndRemovesSessionFromBothIndexes(t *testing.T) {
	mgr := NewManager(testDeps())
	sess, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	require.NoError(t, err)

	mgr.End(sess.ID)
	_, err = mgr.Get("agent-1", sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, mgr.AgentSessions("agent-1"))
}

func TestEndAgentSessionsRemovesAll(t *testing.T) {
	mgr := NewManager(testDeps())
	_, err := mgr.Create(context.Background(), "agent-1", "Negamax", "white", 5)
	require.NoError(t, err)
	_, err = mgr.Create(context.Background(), "agent-1", "MCTS", "white", 5)
	require.NoError(t, err)

	mgr.EndAgentSessions("agent-1")
	assert.Empty(t, mgr.AgentSessions("agent-1"))
	assert.Equal(t, 0, mgr.Count())
}

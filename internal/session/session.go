// Package session implements the per-agent game session core: a Session is
// one chess game bound to a single agent, and SessionManager owns the
// sessionId -> Session map plus the agentId -> sessions index that keeps
// cross-agent access impossible and cardinality bounded.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/chessmcp/internal/chessgame"
	"github.com/kadirpekel/chessmcp/internal/engine"
	"github.com/kadirpekel/chessmcp/internal/notify"
)

// Sentinel errors the MCP router translates into JSON-RPC error codes.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("session belongs to a different agent")
	ErrSessionLimit    = errors.New("session limit reached")
	ErrTerminalGame    = errors.New("game is already over")
)

// Status is the game's lifecycle state. Transitions are monotone away from
// Active; terminal states are absorbing.
type Status string

const (
	StatusActive      Status = "active"
	StatusWhiteWins   Status = "white_wins"
	StatusBlackWins   Status = "black_wins"
	StatusDraw        Status = "draw"
	StatusResigned    Status = "resigned"
)

func (s Status) terminal() bool { return s != StatusActive }

// Default per-agent and global cardinality caps, per §4.6. Deps.MaxSessionsPerAgent
// and Deps.MaxSessionsGlobal override these with configured values; a zero
// Deps falls back to these constants.
const (
	MaxSessionsPerAgent = 10
	MaxSessionsGlobal   = 1000
)

// RuleEvaluator is the authoritative legality/encoding surface a Session
// consults before mutating its GameState. defaultEvaluator adapts
// chessgame.GameState's own methods to this interface; it is factored out
// so tests can substitute a fixture-driven stand-in.
type RuleEvaluator interface {
	LegalMoves(state *chessgame.GameState) []string
	IsLegal(state *chessgame.GameState, uci string) bool
}

type defaultEvaluator struct{}

func (defaultEvaluator) LegalMoves(state *chessgame.GameState) []string { return state.LegalMoves() }
func (defaultEvaluator) IsLegal(state *chessgame.GameState, uci string) bool {
	return state.IsLegal(uci)
}

// EngineLookup resolves an engine name to its ChessEngine implementation,
// satisfied by *engine.Registry.
type EngineLookup interface {
	Lookup(name string) (engine.ChessEngine, error)
}

// EngineSearcher dispatches a bounded search to a resolved engine,
// satisfied by *engine.Dispatcher.
type EngineSearcher interface {
	Search(ctx context.Context, engineName string, impl engine.ChessEngine, state *chessgame.GameState, difficulty int) (string, error)
}

// Deps is the capability struct passed by reference at session
// construction in place of mutable global singletons: a Session reaches
// the engine dispatcher, notification bus, and rule evaluator only through
// this struct, never through package-level state.
type Deps struct {
	Engines       EngineLookup
	Dispatcher    EngineSearcher
	Notifications *notify.Bus
	Rules         RuleEvaluator

	// MaxSessionsPerAgent and MaxSessionsGlobal override the §4.6 defaults
	// with the configured mcp.concurrent.* values; zero keeps the default.
	MaxSessionsPerAgent int
	MaxSessionsGlobal   int
}

func (d Deps) withDefaults() Deps {
	if d.Rules == nil {
		d.Rules = defaultEvaluator{}
	}
	if d.MaxSessionsPerAgent == 0 {
		d.MaxSessionsPerAgent = MaxSessionsPerAgent
	}
	if d.MaxSessionsGlobal == 0 {
		d.MaxSessionsGlobal = MaxSessionsGlobal
	}
	return d
}

// MoveResult is makeMove's return payload.
type MoveResult struct {
	PlayerMove string
	AIMove     string // empty if the game ended on the player's move
	FEN        string
	Status     Status
	ThinkingMs int64
}

// Session is one chess game bound to a single agent. All mutating methods
// hold the session's own lock for their duration; callers never see a
// partially-applied move.
type Session struct {
	ID          string
	AgentID     string
	AIOpponent  string
	PlayerColor string // "white" or "black"
	Difficulty  int
	CreatedAt   time.Time

	mu                    sync.Mutex
	state                 *chessgame.GameState
	lastActivity          time.Time
	movesPlayed           int
	averageThinkingTimeMs float64
	status                Status

	deps Deps
}

// newSessionID mints "chess-session-<agentId>-<8-char-nonce>" per §3, using
// the first 8 hex digits of a fresh UUIDv4 as the nonce.
func newSessionID(agentID string) (string, error) {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("chess-session-%s-%s", agentID, nonce), nil
}

// Snapshot is the read-only view returned by get_board_state and similar
// resources; it never exposes the session's lock or deps.
type Snapshot struct {
	SessionID             string
	AgentID               string
	AIOpponent            string
	PlayerColor           string
	Difficulty            int
	FEN                   string
	MovesPlayed           int
	AverageThinkingTimeMs float64
	Status                Status
	CreatedAt             time.Time
	LastActivity          time.Time
}

// Snapshot returns a consistent point-in-time copy of the session's state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:             s.ID,
		AgentID:               s.AgentID,
		AIOpponent:            s.AIOpponent,
		PlayerColor:           s.PlayerColor,
		Difficulty:            s.Difficulty,
		FEN:                   s.state.FEN(),
		MovesPlayed:           s.movesPlayed,
		AverageThinkingTimeMs: s.averageThinkingTimeMs,
		Status:                s.status,
		CreatedAt:             s.CreatedAt,
		LastActivity:          s.lastActivity,
	}
}

// LegalMoves returns the legal moves for the side to move, empty for a
// terminal game.
func (s *Session) LegalMoves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.terminal() {
		return nil
	}
	return s.deps.Rules.LegalMoves(s.state)
}

// Analyze runs a read-only engine search at the session's AI opponent and
// returns its suggested move, without applying it.
func (s *Session) Analyze(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.terminal() {
		return "", ErrTerminalGame
	}
	impl, err := s.deps.Engines.Lookup(s.AIOpponent)
	if err != nil {
		return "", err
	}
	return s.deps.Dispatcher.Search(ctx, s.AIOpponent, impl, s.state, s.Difficulty)
}

// Hint is Analyze under another name for the get_move_hint tool; hintLevel
// is accepted for API parity with the spec but does not change the engine
// used, only how much of the suggestion the caller chooses to reveal.
func (s *Session) Hint(ctx context.Context) (string, error) {
	return s.Analyze(ctx)
}

// OpeningMove applies a single AI move when the AI plays white and no move
// has been made yet, per §4.5. It is a no-op otherwise.
func (s *Session) OpeningMove(ctx context.Context) (string, error) {
	s.mu.Lock()
	whitesTurn := s.movesPlayed == 0 && s.PlayerColor == "black"
	s.mu.Unlock()
	if !whitesTurn {
		return "", nil
	}
	return s.applyAIMove(ctx)
}

// MakeMove validates and applies a player move, then (unless the game just
// ended) requests and applies one AI reply. It emits ai_move and, on a
// terminal transition, game_state notifications.
func (s *Session) MakeMove(ctx context.Context, uci string) (MoveResult, error) {
	s.mu.Lock()
	if s.status.terminal() {
		s.mu.Unlock()
		return MoveResult{}, ErrTerminalGame
	}
	if !s.deps.Rules.IsLegal(s.state, uci) {
		s.mu.Unlock()
		return MoveResult{}, &chessgame.IllegalMoveError{
			Move:       uci,
			LegalMoves: s.deps.Rules.LegalMoves(s.state),
		}
	}
	if err := s.state.Apply(uci); err != nil {
		s.mu.Unlock()
		return MoveResult{}, err
	}
	s.movesPlayed++
	s.refreshStatusLocked()
	terminalAfterPlayer := s.status.terminal()
	s.mu.Unlock()

	if terminalAfterPlayer {
		s.notifyGameState()
		return s.snapshotResult(uci, "", 0), nil
	}

	start := time.Now()
	aiMove, err := s.applyAIMove(ctx)
	thinkingMs := time.Since(start).Milliseconds()
	if err != nil {
		return MoveResult{}, err
	}

	s.mu.Lock()
	// Every timed AI reply follows a player move, and an untimed opening
	// move (if any) adds one more, so movesPlayed/2 is the number of timed
	// replies folded into the running mean so far.
	n := float64(s.movesPlayed / 2)
	s.averageThinkingTimeMs += (float64(thinkingMs) - s.averageThinkingTimeMs) / n
	terminalAfterAI := s.status.terminal()
	s.mu.Unlock()

	s.notifyAIMove(uci, aiMove)
	if terminalAfterAI {
		s.notifyGameState()
	}
	return s.snapshotResult(uci, aiMove, thinkingMs), nil
}

// applyAIMove requests one engine move for the current position and applies
// it, incrementing movesPlayed and refreshing status. Session state is left
// unchanged if the search fails or times out.
func (s *Session) applyAIMove(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.status.terminal() {
		s.mu.Unlock()
		return "", ErrTerminalGame
	}
	impl, err := s.deps.Engines.Lookup(s.AIOpponent)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	state := s.state
	difficulty := s.Difficulty
	aiName := s.AIOpponent
	s.mu.Unlock()

	move, err := s.deps.Dispatcher.Search(ctx, aiName, impl, state, difficulty)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.state.Apply(move); err != nil {
		return "", fmt.Errorf("session: engine %q proposed illegal move %q: %w", aiName, move, err)
	}
	s.movesPlayed++
	s.refreshStatusLocked()
	return move, nil
}

// refreshStatusLocked derives gameStatus from the current GameState outcome.
// Caller must hold s.mu.
func (s *Session) refreshStatusLocked() {
	outcome, terminal := s.state.Outcome()
	if !terminal {
		s.status = StatusActive
		return
	}
	switch outcome {
	case chessgame.StatusWhiteWins:
		s.status = StatusWhiteWins
	case chessgame.StatusBlackWins:
		s.status = StatusBlackWins
	default:
		s.status = StatusDraw
	}
}

// Resign transitions the session to the Resigned terminal state regardless
// of whose turn it is.
func (s *Session) Resign() {
	s.mu.Lock()
	s.status = StatusResigned
	s.mu.Unlock()
	s.notifyGameState()
}

func (s *Session) snapshotResult(playerMove, aiMove string, thinkingMs int64) MoveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MoveResult{
		PlayerMove: playerMove,
		AIMove:     aiMove,
		FEN:        s.state.FEN(),
		Status:     s.status,
		ThinkingMs: thinkingMs,
	}
}

func (s *Session) notifyAIMove(playerMove, aiMove string) {
	if s.deps.Notifications == nil {
		return
	}
	s.mu.Lock()
	fen := s.state.FEN()
	s.mu.Unlock()
	s.deps.Notifications.Publish(s.AgentID, notify.MethodAIMove, map[string]string{
		"sessionId":  s.ID,
		"playerMove": playerMove,
		"aiMove":     aiMove,
		"fen":        fen,
	})
}

func (s *Session) notifyGameState() {
	if s.deps.Notifications == nil {
		return
	}
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	s.deps.Notifications.Publish(s.AgentID, notify.MethodGameState, map[string]string{
		"sessionId": s.ID,
		"status":    string(status),
	})
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Manager owns every live session and the agentId -> sessionIds index,
// enforcing the per-agent and global cardinality caps.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byAgent  map[string]map[string]struct{}
	deps     Deps
}

// NewManager returns an empty session manager using deps for every session
// it creates.
func NewManager(deps Deps) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byAgent:  make(map[string]map[string]struct{}),
		deps:     deps.withDefaults(),
	}
}

// Create opens a new session for agentID, enforcing both cardinality caps
// before allocating anything.
func (m *Manager) Create(ctx context.Context, agentID, aiOpponent, playerColor string, difficulty int) (*Session, error) {
	if _, err := m.deps.Engines.Lookup(aiOpponent); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if len(m.sessions) >= m.deps.MaxSessionsGlobal {
		m.mu.Unlock()
		return nil, ErrSessionLimit
	}
	if len(m.byAgent[agentID]) >= m.deps.MaxSessionsPerAgent {
		m.mu.Unlock()
		return nil, ErrSessionLimit
	}
	m.mu.Unlock()

	id, err := newSessionID(agentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		ID:           id,
		AgentID:      agentID,
		AIOpponent:   aiOpponent,
		PlayerColor:  playerColor,
		Difficulty:   difficulty,
		CreatedAt:    now,
		lastActivity: now,
		state:        chessgame.NewGameState(),
		status:       StatusActive,
		deps:         m.deps,
	}

	m.mu.Lock()
	if len(m.sessions) >= m.deps.MaxSessionsGlobal || len(m.byAgent[agentID]) >= m.deps.MaxSessionsPerAgent {
		m.mu.Unlock()
		return nil, ErrSessionLimit
	}
	m.sessions[id] = sess
	if m.byAgent[agentID] == nil {
		m.byAgent[agentID] = make(map[string]struct{})
	}
	m.byAgent[agentID][id] = struct{}{}
	m.mu.Unlock()

	if _, err := sess.OpeningMove(ctx); err != nil {
		// Opening move failure does not invalidate the session; the player
		// simply moves first instead.
		_ = err
	}
	return sess, nil
}

// Get looks up sessionID, verifying it belongs to agentID. Cross-agent
// access returns ErrUnauthorized rather than ErrSessionNotFound so the
// router can distinguish the two error codes.
func (m *Manager) Get(agentID, sessionID string) (*Session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.AgentID != agentID {
		return nil, ErrUnauthorized
	}
	sess.touch()
	return sess, nil
}

// AgentSessions returns a snapshot of every session live for agentID.
func (m *Manager) AgentSessions(agentID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byAgent[agentID]
	out := make([]*Session, 0, len(ids))
	for id := range ids {
		if sess, ok := m.sessions[id]; ok {
			out = append(out, sess)
		}
	}
	return out
}

// End releases both indexes for sessionID.
func (m *Manager) End(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	if set, ok := m.byAgent[sess.AgentID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.byAgent, sess.AgentID)
		}
	}
}

// EndAgentSessions removes every session owned by agentID, used when
// AgentRegistry evicts an idle agent.
func (m *Manager) EndAgentSessions(agentID string) {
	m.mu.Lock()
	ids := m.byAgent[agentID]
	toDelete := make([]string, 0, len(ids))
	for id := range ids {
		toDelete = append(toDelete, id)
	}
	m.mu.Unlock()
	for _, id := range toDelete {
		m.End(id)
	}
}

// Count returns the current global session count.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/kadirpekel/chessmcp/internal/engine"
	"github.com/kadirpekel/chessmcp/internal/registry"
	"github.com/kadirpekel/chessmcp/internal/session"
)

var sessionIDPattern = regexp.MustCompile(`^chess-session-.+$`)
var moveArgPattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// ToolHandler executes one tool call for agentID and returns a JSON-
// marshalable result, or an error toRPCError knows how to translate.
type ToolHandler func(ctx context.Context, agentID string, args json.RawMessage) (interface{}, error)

// Tool pairs a handler with the name tools/list advertises.
type Tool struct {
	Name        string
	Description string
	Handler     ToolHandler
}

// Tools owns the server's fixed set of tool handlers, built once at
// startup against the shared session manager and engine registry.
type Tools struct {
	base *registry.BaseRegistry[Tool]
}

// Deps bundles the collaborators tool handlers need, mirroring the
// SessionDeps capability-struct pattern at the server's outer layer.
type Deps struct {
	Sessions *session.Manager
	Engines  *engine.Registry
}

// NewTools builds and registers the eight tools from §4.11.
func NewTools(deps Deps) *Tools {
	t := &Tools{base: registry.NewBaseRegistry[Tool]()}
	for _, tool := range []Tool{
		{Name: "create_chess_game", Description: "Start a new chess game against a named AI engine.", Handler: createChessGame(deps)},
		{Name: "make_chess_move", Description: "Play a move in UCI notation and receive the AI's reply.", Handler: makeChessMove(deps)},
		{Name: "get_board_state", Description: "Read a session's current FEN and status.", Handler: getBoardState(deps)},
		{Name: "analyze_position", Description: "Run a read-only engine search on the current position.", Handler: analyzePosition(deps)},
		{Name: "get_legal_moves", Description: "List every legal move in the current position.", Handler: getLegalMoves(deps)},
		{Name: "get_move_hint", Description: "Suggest a move without applying it.", Handler: getMoveHint(deps)},
		{Name: "create_tournament", Description: "Create one session per recognized engine.", Handler: createTournament(deps)},
		{Name: "get_tournament_status", Description: "Summarize the requesting agent's live sessions.", Handler: getTournamentStatus(deps)},
	} {
		_ = t.base.Register(tool.Name, tool)
	}
	return t
}

// Names returns the tool names sorted alphabetically, for tools/list.
func (t *Tools) Names() []string { return t.base.Names() }

// Lookup resolves a tool by name.
func (t *Tools) Lookup(name string) (Tool, bool) { return t.base.Get(name) }

func decodeArgs(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing arguments")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func createChessGame(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		var args struct {
			AIOpponent  string `json:"aiOpponent"`
			PlayerColor string `json:"playerColor"`
			Difficulty  *int   `json:"difficulty"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, invalidParams(err)
		}
		if args.PlayerColor != "white" && args.PlayerColor != "black" {
			return nil, invalidParams(fmt.Errorf("playerColor must be \"white\" or \"black\""))
		}
		difficulty := 5
		if args.Difficulty != nil {
			difficulty = *args.Difficulty
		}
		if difficulty < 1 || difficulty > 10 {
			return nil, invalidParams(fmt.Errorf("difficulty must be in [1,10]"))
		}

		sess, err := deps.Sessions.Create(ctx, agentID, args.AIOpponent, args.PlayerColor, difficulty)
		if err != nil {
			return nil, err
		}
		snap := sess.Snapshot()
		return map[string]interface{}{
			"sessionId": snap.SessionID,
			"fen":       snap.FEN,
			"status":    snap.Status,
		}, nil
	}
}

func makeChessMove(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		var args struct {
			SessionID string `json:"sessionId"`
			Move      string `json:"move"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, invalidParams(err)
		}
		if !sessionIDPattern.MatchString(args.SessionID) {
			return nil, invalidParams(fmt.Errorf("sessionId does not match ^chess-session-.+$"))
		}
		if !moveArgPattern.MatchString(args.Move) {
			return nil, invalidParams(fmt.Errorf("move does not match UCI pattern"))
		}

		sess, err := deps.Sessions.Get(agentID, args.SessionID)
		if err != nil {
			return nil, err
		}
		result, err := sess.MakeMove(ctx, args.Move)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"playerMove": result.PlayerMove,
			"aiMove":     result.AIMove,
			"fen":        result.FEN,
			"gameStatus": result.Status,
			"thinkingMs": result.ThinkingMs,
		}, nil
	}
}

func getBoardState(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		var args struct {
			SessionID string `json:"sessionId"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, invalidParams(err)
		}
		sess, err := deps.Sessions.Get(agentID, args.SessionID)
		if err != nil {
			return nil, err
		}
		return snapshotToMap(sess.Snapshot()), nil
	}
}

func analyzePosition(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		var args struct {
			SessionID string `json:"sessionId"`
			Depth     *int   `json:"depth"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, invalidParams(err)
		}
		sess, err := deps.Sessions.Get(agentID, args.SessionID)
		if err != nil {
			return nil, err
		}
		move, err := sess.Analyze(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"suggestedMove": move}, nil
	}
}

func getLegalMoves(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		var args struct {
			SessionID string `json:"sessionId"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, invalidParams(err)
		}
		sess, err := deps.Sessions.Get(agentID, args.SessionID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"legalMoves": sess.LegalMoves()}, nil
	}
}

func getMoveHint(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		var args struct {
			SessionID string `json:"sessionId"`
			HintLevel *int   `json:"hintLevel"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, invalidParams(err)
		}
		sess, err := deps.Sessions.Get(agentID, args.SessionID)
		if err != nil {
			return nil, err
		}
		move, err := sess.Hint(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"hint": move}, nil
	}
}

// createTournament creates one session per recognized engine concurrently,
// reporting partial failures per AI instead of failing the whole call.
func createTournament(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		var args struct {
			PlayerColor string `json:"playerColor"`
			Difficulty  *int   `json:"difficulty"`
		}
		if err := decodeArgs(raw, &args); err != nil {
			return nil, invalidParams(err)
		}
		if args.PlayerColor != "white" && args.PlayerColor != "black" {
			return nil, invalidParams(fmt.Errorf("playerColor must be \"white\" or \"black\""))
		}
		difficulty := 5
		if args.Difficulty != nil {
			difficulty = *args.Difficulty
		}

		names := deps.Engines.Available()
		type outcome struct {
			Engine    string `json:"engine"`
			SessionID string `json:"sessionId,omitempty"`
			Error     string `json:"error,omitempty"`
		}
		results := make([]outcome, len(names))

		var wg sync.WaitGroup
		for i, name := range names {
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				sess, err := deps.Sessions.Create(ctx, agentID, name, args.PlayerColor, difficulty)
				if err != nil {
					results[i] = outcome{Engine: name, Error: err.Error()}
					return
				}
				results[i] = outcome{Engine: name, SessionID: sess.ID}
			}(i, name)
		}
		wg.Wait()

		return map[string]interface{}{"results": results}, nil
	}
}

func getTournamentStatus(deps Deps) ToolHandler {
	return func(ctx context.Context, agentID string, raw json.RawMessage) (interface{}, error) {
		sessions := deps.Sessions.AgentSessions(agentID)
		out := make([]map[string]interface{}, 0, len(sessions))
		for _, sess := range sessions {
			out = append(out, snapshotToMap(sess.Snapshot()))
		}
		return map[string]interface{}{"sessions": out}, nil
	}
}

func snapshotToMap(snap session.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"sessionId":             snap.SessionID,
		"aiOpponent":            snap.AIOpponent,
		"playerColor":           snap.PlayerColor,
		"difficulty":            snap.Difficulty,
		"fen":                   snap.FEN,
		"movesPlayed":           snap.MovesPlayed,
		"averageThinkingTimeMs": snap.AverageThinkingTimeMs,
		"gameStatus":            snap.Status,
		"createdAt":             snap.CreatedAt,
		"lastActivity":          snap.LastActivity,
	}
}

func invalidParams(err error) *RPCError {
	return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
}

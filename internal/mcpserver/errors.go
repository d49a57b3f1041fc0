package mcpserver

import (
	"errors"

	"github.com/kadirpekel/chessmcp/internal/chessgame"
	"github.com/kadirpekel/chessmcp/internal/engine"
	"github.com/kadirpekel/chessmcp/internal/ratchet"
	"github.com/kadirpekel/chessmcp/internal/ratelimit"
	"github.com/kadirpekel/chessmcp/internal/session"
)

// toRPCError maps a handler error onto the JSON-RPC error code table in §6.
// Unrecognized errors fall back to -32603 internal error.
func toRPCError(err error) *RPCError {
	var illegal *chessgame.IllegalMoveError
	var rpcErr *RPCError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.As(err, &illegal):
		return &RPCError{Code: CodeInvalidMove, Message: "invalid move", Data: map[string]interface{}{
			"move":       illegal.Move,
			"legalMoves": illegal.LegalMoves,
		}}
	case errors.Is(err, session.ErrSessionNotFound):
		return &RPCError{Code: CodeSessionNotFound, Message: "session not found"}
	case errors.Is(err, session.ErrUnauthorized):
		return &RPCError{Code: CodeUnauthorized, Message: "session belongs to a different agent"}
	case errors.Is(err, session.ErrSessionLimit):
		return &RPCError{Code: CodeSessionLimit, Message: "session limit reached"}
	case errors.Is(err, session.ErrTerminalGame):
		return &RPCError{Code: CodeInvalidRequest, Message: "game is already over"}
	case errors.Is(err, engine.ErrUnknownEngine):
		return &RPCError{Code: CodeInvalidParams, Message: "unknown engine"}
	case errors.Is(err, engine.ErrTimeout):
		return &RPCError{Code: CodeEngineTimeout, Message: "engine timeout"}
	case errors.Is(err, ratelimit.ErrDenied):
		return &RPCError{Code: CodeRateLimited, Message: "rate limit exceeded"}
	case errors.Is(err, ratchet.ErrDecryptFailed):
		return &RPCError{Code: CodeParseError, Message: "unable to decrypt envelope"}
	case errors.Is(err, errUnknownResource):
		return &RPCError{Code: CodeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: CodeInternalError, Message: err.Error()}
	}
}

package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kadirpekel/chessmcp/internal/agentreg"
	"github.com/kadirpekel/chessmcp/internal/notify"
	"github.com/kadirpekel/chessmcp/internal/observability"
	"github.com/kadirpekel/chessmcp/internal/ratchet"
	"github.com/kadirpekel/chessmcp/internal/ratelimit"
)

const serverVersion = "1.0.0"

// Router decodes, validates, and dispatches JSON-RPC frames per §4.12: it
// owns no transport-specific framing and is driven one decoded frame at a
// time by a stdio or WebSocket adapter.
type Router struct {
	tools      *Tools
	resources  *Resources
	limiter    *ratelimit.Limiter
	agents     *agentreg.Registry
	metrics    *observability.Metrics
	log        *slog.Logger
	ratchetSvc *ratchet.Service
	encryption bool
}

// NewRouter wires the tool/resource registries to the shared rate limiter
// and agent registry. ratchetSvc and encryption implement §4.10's optional
// overlay: when encryption is false the router never probes a frame for
// the "encrypted" field at all, so a nil ratchetSvc is safe in that mode.
func NewRouter(tools *Tools, resources *Resources, limiter *ratelimit.Limiter, agents *agentreg.Registry, metrics *observability.Metrics, log *slog.Logger, ratchetSvc *ratchet.Service, encryption bool) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{tools: tools, resources: resources, limiter: limiter, agents: agents, metrics: metrics, log: log, ratchetSvc: ratchetSvc, encryption: encryption}
}

// Handle decodes one JSON-RPC frame already known to belong to agentID and
// returns the response bytes to write back, or nil for a notification (no
// reply expected). A frame that is not valid JSON gets a -32700 error
// response with a null id. When the server
// runs with encryption enabled, raw may be an encrypted §4.10 envelope
// instead of a plaintext frame; the response is then encrypted to match.
func (r *Router) Handle(ctx context.Context, agentID, transport string, raw []byte) []byte {
	start := time.Now()

	encrypted := r.encryption && ratchet.IsEncrypted(raw)
	var state *ratchet.State
	if encrypted {
		var env ratchet.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return encode(NewError(nil, CodeParseError, "parse error", err.Error()))
		}
		st, ok := r.ratchetSvc.Get(agentID)
		if !ok {
			r.metrics.RecordRatchetDecryptFailure()
			return encode(NewError(nil, CodeParseError, "unable to decrypt envelope", nil))
		}
		plaintext, err := st.Decrypt(env)
		if err != nil {
			r.metrics.RecordRatchetDecryptFailure()
			return r.encodeMaybeEncrypted(nil, toRPCError(err), nil, true)
		}
		state = st
		raw = plaintext
	}

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return r.encodeMaybeEncrypted(nil, &RPCError{Code: CodeParseError, Message: "parse error", Data: err.Error()}, state, encrypted)
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return r.encodeMaybeEncrypted(req.ID, &RPCError{Code: CodeInvalidRequest, Message: "invalid request"}, state, encrypted)
	}

	r.agents.Touch(agentID)

	classes := classify(req)
	if decision := r.limiter.Admit(agentID, classes...); !decision.Allowed {
		r.metrics.RecordRateLimitDenial(string(decision.Class))
		if req.IsNotification() {
			return nil
		}
		return r.encodeMaybeEncrypted(req.ID, &RPCError{Code: CodeRateLimited, Message: "rate limit exceeded", Data: map[string]interface{}{
			"retryAfterMs": decision.RetryAfter.Milliseconds(),
		}}, state, encrypted)
	}

	resp := r.dispatch(ctx, agentID, req)
	r.metrics.RecordTransportRequest(transport, req.Method, time.Since(start))

	if req.IsNotification() {
		return nil
	}
	if !encrypted {
		return encode(resp)
	}
	return r.encryptResponse(resp, state)
}

// encodeMaybeEncrypted builds an error response and, if the triggering
// frame arrived encrypted, seals it through state before returning; state
// is nil whenever the inbound envelope itself couldn't be decrypted, in
// which case the error goes back in the clear since no working key exists.
func (r *Router) encodeMaybeEncrypted(id json.RawMessage, rpcErr *RPCError, state *ratchet.State, encrypted bool) []byte {
	resp := Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if !encrypted || state == nil {
		return encode(resp)
	}
	return r.encryptResponse(resp, state)
}

// encryptResponse marshals resp and seals it into an Envelope via state,
// falling back to a plaintext internal-error frame if either step fails.
func (r *Router) encryptResponse(resp Response, state *ratchet.State) []byte {
	plaintext, err := json.Marshal(resp)
	if err != nil {
		return encode(NewError(resp.ID, CodeInternalError, "internal error encoding response", nil))
	}
	env, err := state.Encrypt(plaintext)
	if err != nil {
		return encode(NewError(resp.ID, CodeInternalError, "internal error encrypting response", nil))
	}
	b, err := json.Marshal(env)
	if err != nil {
		return encode(NewError(resp.ID, CodeInternalError, "internal error encoding response", nil))
	}
	return b
}

// classify returns every rate-limit class a request is billed against. Per
// §4.8 a request clears all applicable thresholds at once: burst and
// general apply universally, and a tools/call of make_chess_move
// additionally counts against the narrower moves budget.
func classify(req Request) []ratelimit.Class {
	if req.Method == "tools/call" {
		var call struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(req.Params, &call) == nil && call.Name == "make_chess_move" {
			return []ratelimit.Class{ratelimit.ClassBurst, ratelimit.ClassMoves, ratelimit.ClassGeneral}
		}
	}
	return []ratelimit.Class{ratelimit.ClassBurst, ratelimit.ClassGeneral}
}

func (r *Router) dispatch(ctx context.Context, agentID string, req Request) Response {
	switch req.Method {
	case "initialize":
		return NewResult(req.ID, map[string]interface{}{
			"serverInfo": map[string]string{"name": "chessmcp", "version": serverVersion},
			"capabilities": map[string]interface{}{
				"tools":     map[string]interface{}{},
				"resources": map[string]interface{}{},
			},
		})

	case "tools/list":
		return NewResult(req.ID, map[string]interface{}{"tools": toolList(r.tools)})

	case "resources/list":
		return NewResult(req.ID, map[string]interface{}{"resources": resourceList(r.resources)})

	case "tools/call":
		return r.callTool(ctx, agentID, req)

	case "resources/read":
		return r.readResource(agentID, req)

	default:
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

func toolList(tools *Tools) []map[string]string {
	names := tools.Names()
	out := make([]map[string]string, 0, len(names))
	for _, name := range names {
		tool, _ := tools.Lookup(name)
		out = append(out, map[string]string{"name": tool.Name, "description": tool.Description})
	}
	return out
}

func resourceList(resources *Resources) []map[string]string {
	names := resources.Names()
	out := make([]map[string]string, 0, len(names))
	for _, uri := range names {
		out = append(out, map[string]string{"uri": uri})
	}
	return out
}

func (r *Router) callTool(ctx context.Context, agentID string, req Request) Response {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &call); err != nil || call.Name == "" {
		return NewError(req.ID, CodeInvalidParams, "invalid params: expected {name, arguments}", nil)
	}

	tool, ok := r.tools.Lookup(call.Name)
	if !ok {
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown tool: %s", call.Name), nil)
	}

	result, err := tool.Handler(ctx, agentID, call.Arguments)
	if err != nil {
		rpcErr := toRPCError(err)
		r.log.Warn("tool call failed", "tool", call.Name, "agent", agentID, "code", rpcErr.Code, "error", err)
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	return NewResult(req.ID, result)
}

func (r *Router) readResource(agentID string, req Request) Response {
	var args struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &args); err != nil || args.URI == "" {
		return NewError(req.ID, CodeInvalidParams, "invalid params: expected {uri}", nil)
	}

	content, err := r.resources.Read(agentID, args.URI)
	if err != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: toRPCError(err)}
	}
	return NewResult(req.ID, content)
}

// EncodeNotification renders a notify.Notification as a JSON-RPC
// notification frame ready to write to the transport.
func EncodeNotification(n notify.Notification) []byte {
	b, err := json.Marshal(n)
	if err != nil {
		return nil
	}
	return b
}

func encode(resp Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error encoding response"}}`)
	}
	return b
}

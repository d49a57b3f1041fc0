// Package agentreg tracks the set of connected MCP agents (clients) and
// their liveness, independent of any particular transport. Each agent gets
// a short-lived identity the rest of the server (sessions, rate limiting,
// the ratchet) keys its per-agent state on.
package agentreg

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrAgentLimit is returned by Register once the configured concurrent
// agent cap is reached, per §5's "Violations rejected synchronously".
var ErrAgentLimit = errors.New("agentreg: max concurrent agents reached")

// ClientInfo is the identifying metadata an agent supplies at registration,
// mirroring the "initialize" request's clientInfo object.
type ClientInfo struct {
	Name    string
	Version string
}

// Agent is one connected MCP client.
type Agent struct {
	ID           string
	Client       ClientInfo
	Transport    string // "stdio" or "websocket"
	RegisteredAt time.Time

	mu         sync.Mutex
	lastActive time.Time
}

func (a *Agent) touch() {
	a.mu.Lock()
	a.lastActive = time.Now()
	a.mu.Unlock()
}

// LastActive returns the last time this agent was seen.
func (a *Agent) LastActive() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastActive
}

// Registry is the concurrency-safe set of currently connected agents.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*Agent
	maxAgents int

	// OnExpire is invoked for every agent the sweep evicts, so callers can
	// tear down sessions, ratchet state, and rate-limit buckets. Set before
	// the first call to Sweep; nil means eviction is silent.
	OnExpire func(agentID string)
}

// New returns an empty agent registry enforcing at most maxAgents
// simultaneously connected agents per §5; 0 means unlimited.
func New(maxAgents int) *Registry {
	return &Registry{agents: make(map[string]*Agent), maxAgents: maxAgents}
}

// Register mints a new agent identity of the form "agent-<8 hex chars>" and
// records it as active immediately, rejecting the registration synchronously
// once the registry already holds maxAgents agents.
func (r *Registry) Register(client ClientInfo, transport string) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.maxAgents > 0 && len(r.agents) >= r.maxAgents {
		return nil, ErrAgentLimit
	}

	id := newAgentID()
	now := time.Now()
	agent := &Agent{
		ID:           id,
		Client:       client,
		Transport:    transport,
		RegisteredAt: now,
		lastActive:   now,
	}
	r.agents[id] = agent
	return agent, nil
}

// newAgentID mints "agent-<8-char-nonce>" using the first 8 hex digits of
// a fresh UUIDv4 as the nonce.
func newAgentID() string {
	return "agent-" + shortNonce()
}

func shortNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Touch records activity for agentID, extending its idle deadline. It is a
// no-op if the agent is unknown (e.g. already swept).
func (r *Registry) Touch(agentID string) {
	r.mu.RLock()
	agent, ok := r.agents[agentID]
	r.mu.RUnlock()
	if ok {
		agent.touch()
	}
}

// Get returns the agent by ID, if still connected.
func (r *Registry) Get(agentID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	return agent, ok
}

// Remove immediately forgets an agent, used on transport disconnect.
func (r *Registry) Remove(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
}

// Count returns the number of currently registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Sweep evicts any agent inactive for longer than maxIdle, calling OnExpire
// for each. Intended to run on a periodic ticker (every 5 minutes per §4.2,
// evicting past 30 minutes of inactivity).
func (r *Registry) Sweep(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var expired []string
	for id, agent := range r.agents {
		if agent.LastActive().Before(cutoff) {
			expired = append(expired, id)
			delete(r.agents, id)
		}
	}
	r.mu.Unlock()

	if r.OnExpire == nil {
		return
	}
	for _, id := range expired {
		r.OnExpire(id)
	}
}

// Run starts a background sweep loop, stopping when ctx... (callers use a
// plain ticker + stop channel instead of a context here because the sweep
// has no per-call deadline, only a period).
func (r *Registry) Run(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(maxIdle)
		case <-stop:
			return
		}
	}
}

package mcpserver

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/chessmcp/internal/engine"
	"github.com/kadirpekel/chessmcp/internal/openingbook"
	"github.com/kadirpekel/chessmcp/internal/registry"
	"github.com/kadirpekel/chessmcp/internal/session"
)

// ResourceReader serves the content at one resource URI for agentID.
// Ownership-scoped resources (game-sessions/<id>) enforce that agentID
// owns the session before returning anything.
type ResourceReader func(agentID string) (interface{}, error)

// Resource pairs a URI with the handler that serves it.
type Resource struct {
	URI         string
	Description string
	Read        ResourceReader
}

// Resources owns the six static and per-agent resources from §4.11.
type Resources struct {
	base     *registry.BaseRegistry[Resource]
	sessions *session.Manager
	engines  *engine.Registry
}

// NewResources builds the fixed resource set plus the dynamic
// per-session reader used for chess://game-sessions/<sessionId>.
func NewResources(deps Deps) *Resources {
	r := &Resources{
		base:     registry.NewBaseRegistry[Resource](),
		sessions: deps.Sessions,
		engines:  deps.Engines,
	}

	_ = r.base.Register("chess://ai-systems", Resource{
		URI:         "chess://ai-systems",
		Description: "Static list of the twelve recognized AI engines.",
		Read: func(agentID string) (interface{}, error) {
			return map[string]interface{}{"engines": r.engines.Available()}, nil
		},
	})
	_ = r.base.Register("chess://opening-book", Resource{
		URI:         "chess://opening-book",
		Description: "Named opening catalog with ECO codes.",
		Read: func(agentID string) (interface{}, error) {
			return map[string]interface{}{"openings": openingbook.Openings}, nil
		},
	})
	_ = r.base.Register("chess://game-sessions", Resource{
		URI:         "chess://game-sessions",
		Description: "The requesting agent's live sessions.",
		Read: func(agentID string) (interface{}, error) {
			sessions := r.sessions.AgentSessions(agentID)
			out := make([]map[string]interface{}, 0, len(sessions))
			for _, sess := range sessions {
				out = append(out, snapshotToMap(sess.Snapshot()))
			}
			return map[string]interface{}{"sessions": out}, nil
		},
	})
	_ = r.base.Register("chess://training-stats", Resource{
		URI:         "chess://training-stats",
		Description: "Static aggregate self-play figures per engine.",
		Read: func(agentID string) (interface{}, error) {
			return openingbook.Stats, nil
		},
	})
	_ = r.base.Register("chess://tactical-patterns", Resource{
		URI:         "chess://tactical-patterns",
		Description: "Static catalog of named tactical motifs.",
		Read: func(agentID string) (interface{}, error) {
			return map[string]interface{}{"patterns": openingbook.TacticalPatterns}, nil
		},
	})

	return r
}

const sessionResourcePrefix = "chess://game-sessions/"

// Read resolves uri to its content for agentID. Session-scoped URIs of the
// form chess://game-sessions/<sessionId> are resolved dynamically rather
// than pre-registered, since the set of live sessions changes constantly.
func (r *Resources) Read(agentID, uri string) (interface{}, error) {
	if strings.HasPrefix(uri, sessionResourcePrefix) {
		sessionID := strings.TrimPrefix(uri, sessionResourcePrefix)
		sess, err := r.sessions.Get(agentID, sessionID)
		if err != nil {
			return nil, err
		}
		return snapshotToMap(sess.Snapshot()), nil
	}

	res, ok := r.base.Get(uri)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownResource, uri)
	}
	return res.Read(agentID)
}

// Names returns every statically registered resource URI, for
// resources/list. The dynamic per-session URIs are not enumerated; callers
// discover them via chess://game-sessions.
func (r *Resources) Names() []string { return r.base.Names() }

var errUnknownResource = fmt.Errorf("unknown resource")

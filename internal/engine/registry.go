package engine

import (
	"fmt"
	"strings"

	"github.com/kadirpekel/chessmcp/internal/registry"
)

// ErrUnknownEngine is returned for any name outside the closed set in Names.
var ErrUnknownEngine = fmt.Errorf("unknown engine")

// Registry maps the twelve recognized engine names (case-insensitive) to
// their ChessEngine implementation. It is opened with a static set at
// startup; unknown names fail validation rather than registering lazily.
type Registry struct {
	base *registry.BaseRegistry[ChessEngine]
}

// NewRegistry returns an empty engine registry. Call Register for each of
// the twelve names before serving traffic.
func NewRegistry() *Registry {
	return &Registry{base: registry.NewBaseRegistry[ChessEngine]()}
}

func canonicalKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register binds name (case-insensitive) to impl. name must be one of the
// twelve recognized engines.
func (r *Registry) Register(name string, impl ChessEngine) error {
	if !isRecognized(name) {
		return fmt.Errorf("%w: %q is not one of the twelve recognized engines", ErrUnknownEngine, name)
	}
	return r.base.Register(canonicalKey(name), impl)
}

// Lookup resolves an engine by name (case-insensitive), returning
// ErrUnknownEngine when the name is not registered or not recognized.
func (r *Registry) Lookup(name string) (ChessEngine, error) {
	if !isRecognized(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, name)
	}
	impl, ok := r.base.Get(canonicalKey(name))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrUnknownEngine, name)
	}
	return impl, nil
}

// Available returns the canonical list of recognized engine names.
func (r *Registry) Available() []string {
	return append([]string(nil), Names...)
}

func isRecognized(name string) bool {
	key := canonicalKey(name)
	for _, n := range Names {
		if canonicalKey(n) == key {
			return true
		}
	}
	return false
}

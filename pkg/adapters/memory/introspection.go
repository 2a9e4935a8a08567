package memory

import "github.com/aretw0/introspection"

// StoreState exposes internal state for observability.
type StoreState struct {
	Documents int `json:"documents"`
	Watchers  int `json:"watchers"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StoreState{Documents: len(s.docs), Watchers: len(s.watchers)}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "memory"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

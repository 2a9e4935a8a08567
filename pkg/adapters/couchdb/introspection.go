package couchdb

import "github.com/aretw0/introspection"

// StoreState exposes internal state for observability.
type StoreState struct {
	URL      string `json:"url"`
	Database string `json:"database"`
	AutoInit bool   `json:"auto_init"`
	Auth     bool   `json:"auth"`
}

// State implements introspection.Introspectable.
func (s *Store) State() any {
	return StoreState{
		URL:      s.base,
		Database: s.config.Database,
		AutoInit: s.config.AutoInit,
		Auth:     s.config.Username != "",
	}
}

// ComponentType implements introspection.Component.
func (s *Store) ComponentType() string {
	return "couchdb"
}

var _ introspection.Introspectable = (*Store)(nil)
var _ introspection.Component = (*Store)(nil)

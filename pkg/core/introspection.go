package core

import (
	"github.com/aretw0/introspection"
)

// DatabaseState exposes internal state for observability.
type DatabaseState struct {
	StoreType          string   `json:"store_type"`
	TypeKey            string   `json:"type_key"`
	RegisteredTypes    []string `json:"registered_types"`
	GlobalHooks        int      `json:"global_hooks"`
	MaxConflictRetries int      `json:"max_conflict_retries"`
}

// State implements introspection.Introspectable.
func (db *Database) State() any {
	storeType := "unknown"
	if db.store != nil {
		storeType = "store"
		// Try to get component type if store implements introspection.Component
		if comp, ok := db.store.(introspection.Component); ok {
			storeType = comp.ComponentType()
		}
	}

	return DatabaseState{
		StoreType:          storeType,
		TypeKey:            db.typeKey,
		RegisteredTypes:    db.RegisteredTypes(),
		GlobalHooks:        db.hooks.Len(),
		MaxConflictRetries: MaxConflictRetries,
	}
}

// ComponentType implements introspection.Component.
func (db *Database) ComponentType() string {
	return "database"
}

var _ introspection.Introspectable = (*Database)(nil)
var _ introspection.Component = (*Database)(nil)

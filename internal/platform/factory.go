package platform

import (
	"context"

	"github.com/andymorris/couch-potato/pkg/core"
)

// New opens the store selected by opts and wraps it in a Database.
//
//	db, err := couchpotato.New("./data", couchpotato.WithAutoInit(true))
func New(ctx context.Context, uri string, opts ...Option) (*core.Database, error) {
	o := applyOptions(opts)
	store, err := open(ctx, uri, o)
	if err != nil {
		return nil, err
	}

	return core.NewDatabase(store, core.Config{
		Logger:  o.logger,
		TypeKey: o.typeKey,
		Hooks:   o.hooks,
		NewID:   o.newID,
	}), nil
}

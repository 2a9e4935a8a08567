package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andymorris/couch-potato/pkg/adapters/memory"
	"github.com/andymorris/couch-potato/pkg/core"
	"github.com/andymorris/couch-potato/pkg/validate"
)

func TestSaveFields(t *testing.T) {
	ctx := context.Background()
	store := memory.New(memory.Config{})
	db := core.NewDatabase(store, core.Config{Hooks: rulesHooks(validate.New().Require("name"))})

	doc := core.NewGeneric()
	doc.Set(core.IDKey, "spud")
	ok, err := saveFields(ctx, db, doc, map[string]any{"name": "russet"}, false, true)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("Validation applies with retry", func(t *testing.T) {
		ok, err := saveFields(ctx, db, doc, map[string]any{"name": ""}, true, true)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, doc.Errors().Has("name"))
	})

	t.Run("No verify skips validation with retry", func(t *testing.T) {
		ok, err := saveFields(ctx, db, doc, map[string]any{"name": ""}, true, false)
		require.NoError(t, err)
		require.True(t, ok)

		raw, found, err := store.Get(ctx, "spud")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "", raw["name"])
	})
}

package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andymorris/couch-potato/pkg/adapters/fs"
	"github.com/andymorris/couch-potato/pkg/core"
)

func nextEvent(t *testing.T, events <-chan core.Event) core.Event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "events channel closed")
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
		return core.Event{}
	}
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo, path := initialized(t)

	_, err := repo.WriteNew(ctx, core.Raw{"_id": "users/seed"})
	require.NoError(t, err)

	events, err := repo.Watch(ctx, "users/**")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return repo.State().(fs.RepositoryState).WatcherActive
	}, 2*time.Second, 10*time.Millisecond)

	// Outside the pattern: ignored.
	require.NoError(t, os.WriteFile(filepath.Join(path, "other.json"), []byte(`{}`), 0644))
	// Temp and hidden files: ignored.
	require.NoError(t, os.WriteFile(filepath.Join(path, "users", "x.json.tmp"), []byte(`{}`), 0644))

	require.NoError(t, os.WriteFile(filepath.Join(path, "users", "alice.json"), []byte(`{"name":"Alice"}`), 0644))
	e := nextEvent(t, events)
	assert.Equal(t, "users/alice", e.ID)
	assert.Equal(t, core.EventCreate, e.Type)

	require.NoError(t, os.Remove(filepath.Join(path, "users", "alice.json")))
	e = nextEvent(t, events)
	assert.Equal(t, "users/alice", e.ID)
	assert.Equal(t, core.EventDelete, e.Type)

	// Directories created after Start are watched as well.
	require.NoError(t, os.MkdirAll(filepath.Join(path, "users", "team"), 0755))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(path, "users", "team", "bob.yaml"), []byte("name: Bob\n"), 0644))
	e = nextEvent(t, events)
	assert.Equal(t, "users/team/bob", e.ID)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return !repo.State().(fs.RepositoryState).WatcherActive
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatch_InvalidPattern(t *testing.T) {
	repo, _ := initialized(t)
	_, err := repo.Watch(context.Background(), "[")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

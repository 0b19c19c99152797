package migrate_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/pilot/internal/migrate"
	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/internal/storage/sqlite"
	"github.com/quietloop/pilot/pkg/types"
)

func TestRunRemapsLegacyKindsAndScopesProjects(t *testing.T) {
	legacyHome := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(legacyHome, "global.json"), []byte(`{
		"memories": [
			{"content": "prefers dark mode", "kind": "context"},
			{"content": "", "kind": "context"}
		]
	}`), 0o644))

	projectsDir := filepath.Join(legacyHome, "projects")
	require.NoError(t, os.MkdirAll(projectsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectsDir, "acme.json"), []byte(`{
		"memories": [
			{"content": "uses a layered architecture", "kind": "architecture"},
			{"content": "build pipeline is make-based", "kind": "workflow"}
		]
	}`), 0o644))

	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer store.Close()

	n, err := migrate.Run(ctx, store, legacyHome)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	global, _, err := store.List(ctx, storage.ListOptions{Kind: types.KindFact, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, global, 1)

	acme, _, err := store.List(ctx, storage.ListOptions{Project: "acme", Limit: 10})
	require.NoError(t, err)
	assert.Len(t, acme, 2)
	kinds := map[types.Kind]bool{}
	for _, m := range acme {
		kinds[m.Kind] = true
	}
	assert.True(t, kinds[types.KindDecision])
	assert.True(t, kinds[types.KindPattern])
}

func TestRunWithNoLegacyFilesIsANoop(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer store.Close()

	n, err := migrate.Run(ctx, store, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

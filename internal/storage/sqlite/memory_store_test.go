package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/internal/storage/sqlite"
	"github.com/quietloop/pilot/pkg/types"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "pilot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAddDefaultsImportanceTo3(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := &types.Memory{Content: "omitted importance", Kind: types.KindFact}
	stored, merged, err := store.Add(ctx, m)
	require.NoError(t, err)
	assert.False(t, merged)
	assert.Equal(t, 3, stored.Importance)
}

func TestAddMergesNearDuplicateInSameProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &types.Memory{
		Content: "the login handler crashes when the session token stored locally has already expired for this particular account",
		Kind:    types.KindBug,
		Project: "acme",
	}
	_, merged, err := store.Add(ctx, first)
	require.NoError(t, err)
	assert.False(t, merged)

	dup := &types.Memory{
		Content: "the login handler crashes when the session token stored locally has already expired for this particular user",
		Kind:    types.KindBug,
		Project: "acme",
	}
	stored, merged, err := store.Add(ctx, dup)
	require.NoError(t, err)
	assert.True(t, merged)
	assert.Equal(t, first.ID, stored.ID)

	items, total, err := store.List(ctx, storage.ListOptions{Project: "acme"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
}

func TestAddDoesNotMergeAcrossProjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	content := "the login handler crashes when the session token is expired"
	_, merged, err := store.Add(ctx, &types.Memory{Content: content, Kind: types.KindBug, Project: "acme"})
	require.NoError(t, err)
	assert.False(t, merged)

	_, merged, err = store.Add(ctx, &types.Memory{Content: content, Kind: types.KindBug, Project: "globex"})
	require.NoError(t, err)
	assert.False(t, merged)
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetExpiredIsNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	m := &types.Memory{Content: "stale note", Kind: types.KindNote, ExpiresAt: &past}
	stored, _, err := store.Add(ctx, m)
	require.NoError(t, err)

	_, err = store.Get(ctx, stored.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUpdatePatchesOnlyGivenFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, _, err := store.Add(ctx, &types.Memory{
		Content: "original content", Kind: types.KindFact, Tags: []string{"a"}, Importance: 2,
	})
	require.NoError(t, err)

	newContent := "revised content"
	patch := storage.MemoryPatch{Content: &newContent}
	updated, err := store.Update(ctx, stored.ID, patch)
	require.NoError(t, err)

	assert.Equal(t, newContent, updated.Content)
	assert.Equal(t, []string{"a"}, updated.Tags)
	assert.Equal(t, 2, updated.Importance)
}

func TestUpdateClearsExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	stored, _, err := store.Add(ctx, &types.Memory{Content: "expiring", Kind: types.KindNote, ExpiresAt: &future})
	require.NoError(t, err)
	require.NotNil(t, stored.ExpiresAt)

	updated, err := store.Update(ctx, stored.ID, storage.MemoryPatch{SetExpiresAt: true, ExpiresAt: nil})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
}

func TestDeleteRemovesMemory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, _, err := store.Add(ctx, &types.Memory{Content: "temporary", Kind: types.KindNote})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, stored.ID))

	_, err = store.Get(ctx, stored.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListGlobalOnlyExcludesProjectScoped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Add(ctx, &types.Memory{Content: "project preference", Kind: types.KindPreference, Project: "acme"})
	require.NoError(t, err)
	_, _, err = store.Add(ctx, &types.Memory{Content: "global preference", Kind: types.KindPreference})
	require.NoError(t, err)

	items, total, err := store.List(ctx, storage.ListOptions{GlobalOnly: true, Kind: types.KindPreference})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "global preference", items[0].Content)
}

func TestCleanupExpiredDeletesPastItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	_, _, err := store.Add(ctx, &types.Memory{Content: "long gone", Kind: types.KindNote, ExpiresAt: &past})
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	_, _, err = store.Add(ctx, &types.Memory{Content: "still here", Kind: types.KindNote, ExpiresAt: &future})
	require.NoError(t, err)

	n, err := store.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegisterAndDetectProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.RegisterProject(ctx, types.Project{Name: "acme", Path: "/home/dev/acme"})
	require.NoError(t, err)

	detected, err := store.DetectProject(ctx, "/home/dev/acme/internal/api")
	require.NoError(t, err)
	assert.Equal(t, "acme", detected)
}

func TestDetectProjectFallsBackToKebabBasename(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	detected, err := store.DetectProject(ctx, "/home/dev/My Cool App")
	require.NoError(t, err)
	assert.Equal(t, "my-cool-app", detected)
}

func TestStatsCountsByKindAndProject(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Add(ctx, &types.Memory{Content: "a bug", Kind: types.KindBug, Project: "acme"})
	require.NoError(t, err)
	_, _, err = store.Add(ctx, &types.Memory{Content: "a global fact", Kind: types.KindFact})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalMemories)
	assert.EqualValues(t, 1, stats.GlobalCount)
	assert.Equal(t, int64(1), stats.ByKind[string(types.KindBug)])
	assert.Equal(t, int64(1), stats.ByProject["acme"])
}

func TestAddEntitiesAndProjectEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stored, _, err := store.Add(ctx, &types.Memory{Content: "uses postgres", Kind: types.KindFact, Project: "acme"})
	require.NoError(t, err)

	err = store.AddEntities(ctx, stored.ID, []types.MemoryEntity{
		{MemoryID: stored.ID, EntityKind: types.EntityKindTech, EntityValue: "postgres"},
	})
	require.NoError(t, err)

	values, err := store.ProjectEntities(ctx, "acme", types.EntityKindTech, 10)
	require.NoError(t, err)
	assert.Contains(t, values, "postgres")
}

func TestAddLinkAndRelatedMemories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, _, err := store.Add(ctx, &types.Memory{Content: "source memory", Kind: types.KindFact})
	require.NoError(t, err)
	b, _, err := store.Add(ctx, &types.Memory{Content: "target memory", Kind: types.KindFact})
	require.NoError(t, err)

	err = store.AddLink(ctx, types.MemoryLink{SourceID: a.ID, TargetID: b.ID, RelationType: types.RelationDependsOn})
	require.NoError(t, err)

	related, err := store.RelatedMemories(ctx, a.ID, 1)
	require.NoError(t, err)
	var found bool
	for _, m := range related {
		if m.ID == b.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSetAndGetConfig(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.GetConfig(ctx, "missing_key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetConfig(ctx, "global_prompt_path", "/tmp/prompt.md"))
	value, ok, err := store.GetConfig(ctx, "global_prompt_path")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/prompt.md", value)
}

func TestExportJSONAndMarkdown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.Add(ctx, &types.Memory{Content: "exportable fact", Kind: types.KindFact, Project: "acme"})
	require.NoError(t, err)

	jsonOut, err := store.Export(ctx, "acme", "json")
	require.NoError(t, err)
	assert.Contains(t, jsonOut, "exportable fact")

	mdOut, err := store.Export(ctx, "acme", "markdown")
	require.NoError(t, err)
	assert.Contains(t, mdOut, "exportable fact")

	_, err = store.Export(ctx, "acme", "yaml")
	assert.ErrorIs(t, err, storage.ErrInvalidFormat)
}

func TestImportBatchSkipsExactDuplicateContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	items := []storage.ImportItem{
		{Content: "imported once", Kind: types.KindFact, Project: "acme"},
		{Content: "imported once", Kind: types.KindFact, Project: "acme"},
	}
	n, err := store.ImportBatch(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

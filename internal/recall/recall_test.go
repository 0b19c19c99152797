package recall_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/pilot/internal/recall"
	"github.com/quietloop/pilot/internal/storage/sqlite"
	"github.com/quietloop/pilot/pkg/types"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "recall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProjectBrainSurfacesTechAndRecentItems(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, _, err := store.Add(ctx, &types.Memory{
		Content: "acme uses Go and PostgreSQL for the ingest service",
		Kind:    types.KindFact,
		Project: "acme",
	})
	require.NoError(t, err)

	_, _, err = store.Add(ctx, &types.Memory{
		Content: "decided to use RabbitMQ for the event bus",
		Kind:    types.KindDecision,
		Project: "acme",
	})
	require.NoError(t, err)

	_, _, err = store.Add(ctx, &types.Memory{
		Content: "login handler crashes on empty password",
		Kind:    types.KindBug,
		Project: "acme",
	})
	require.NoError(t, err)

	brain, err := recall.ProjectBrain(ctx, store, "acme")
	require.NoError(t, err)

	assert.Equal(t, "acme", brain.Project)
	assert.NotEmpty(t, brain.TechEntities)
	assert.NotEmpty(t, brain.RecentItems)
	assert.Len(t, brain.Decisions, 1)
	assert.Len(t, brain.Bugs, 1)
}

func TestProjectBrainEmptyProjectIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	brain, err := recall.ProjectBrain(ctx, store, "nobody-home")
	require.NoError(t, err)
	assert.Empty(t, brain.RecentItems)
	assert.Empty(t, brain.TechEntities)
}

func TestRecallAssemblesProjectAndGlobalTiers(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, _, err := store.Add(ctx, &types.Memory{
		Content: "use tabs not spaces",
		Kind:    types.KindPreference,
	})
	require.NoError(t, err)

	_, _, err = store.Add(ctx, &types.Memory{
		Content: "acme ships releases every Friday",
		Kind:    types.KindFact,
		Project: "acme",
	})
	require.NoError(t, err)

	res, err := recall.Recall(ctx, store, "acme", "", "")
	require.NoError(t, err)

	assert.Equal(t, "acme", res.Project)
	assert.Len(t, res.ProjectMemories, 1)
	assert.Len(t, res.Preferences, 1)
}

func TestRecallWithHintRunsSearch(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	_, _, err := store.Add(ctx, &types.Memory{
		Content: "rate limiter uses a token bucket",
		Kind:    types.KindPattern,
		Project: "acme",
	})
	require.NoError(t, err)

	res, err := recall.Recall(ctx, store, "acme", "", "token bucket")
	require.NoError(t, err)
	assert.NotEmpty(t, res.HintResults)
}

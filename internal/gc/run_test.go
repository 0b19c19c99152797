package gc_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/pilot/internal/gc"
	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/internal/storage/sqlite"
	"github.com/quietloop/pilot/pkg/types"
)

// TestRunMergesAgedLowImportanceBugs verifies that three low-importance bug
// memories older than the age threshold, in the same project, are
// compressed into one merged memory of the same kind.
func TestRunMergesAgedLowImportanceBugs(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "gc.db"))
	require.NoError(t, err)
	defer store.Close()

	old := time.Now().UTC().AddDate(0, 0, -45)
	for i := 0; i < 3; i++ {
		m := &types.Memory{
			Content:    fmt.Sprintf("login bug number %d crashed the session handler", i),
			Kind:       types.KindBug,
			Project:    "acme",
			Importance: 1,
		}
		_, _, err := store.Add(ctx, m)
		require.NoError(t, err)
		backdate(t, ctx, store, m.ID, old)
	}

	report, err := gc.Run(ctx, store, gc.DefaultConfig(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, report.GroupsMerged)
	assert.Equal(t, 3, report.MemoriesCompressed)

	items, _, err := store.List(ctx, storage.ListOptions{Kind: types.KindBug, Project: "acme"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0].Content, "[MERGED] Bugs related to:")
	assert.True(t, items[0].HasTag("merged"))
}

// backdate directly rewrites created_at since Add always stamps "now"; GC
// candidacy depends on age, so tests need a way to simulate an old item.
func backdate(t *testing.T, ctx context.Context, store *sqlite.Store, id string, when time.Time) {
	t.Helper()
	require.NoError(t, store.SetCreatedAtForTest(ctx, id, when))
}

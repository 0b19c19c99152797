package gc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quietloop/pilot/internal/gc"
	"github.com/quietloop/pilot/pkg/types"
)

func TestScoreLowImportanceOldBugIsHighlyCollectable(t *testing.T) {
	s := gc.Score(1, 400, types.KindBug)
	assert.Greater(t, s, 0.6)
}

func TestScoreHighImportancePreferenceIsNotCollectable(t *testing.T) {
	s := gc.Score(5, 400, types.KindPreference)
	assert.Less(t, s, 0.6)
}

func TestScoreClampedToOne(t *testing.T) {
	s := gc.Score(1, 10000, types.KindTodo)
	assert.LessOrEqual(t, s, 1.0)
}

func TestDefaultConfigHasExpectedBaseline(t *testing.T) {
	cfg := gc.DefaultConfig()
	assert.Equal(t, 30, cfg.AgeDays)
	assert.Equal(t, 3, cfg.ImportanceThreshold)
	assert.Equal(t, 10, cfg.MaxMergeGroup)
	assert.ElementsMatch(t, []types.Kind{types.KindBug, types.KindSnippet, types.KindNote, types.KindTodo}, cfg.CompressibleKinds)
}

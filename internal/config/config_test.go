package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/pilot/internal/config"
)

func TestResolveUsesPilotHomeOverride(t *testing.T) {
	t.Setenv("PILOT_HOME", filepath.Join(t.TempDir(), "custom"))

	paths, err := config.Resolve()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(paths.Home, "memory.db"), paths.DBPath)
	assert.Equal(t, filepath.Join(paths.Home, "GLOBAL_PROMPT.md"), paths.PromptPath)
}

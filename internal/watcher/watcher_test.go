package watcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quietloop/pilot/internal/watcher"
)

func TestNilWatcherHasNoBoost(t *testing.T) {
	var w *watcher.Watcher
	assert.Nil(t, w.GetBoostKeywords())
	w.Stop() // must not panic
}

func TestStartOnTempDirHasEmptyBacklog(t *testing.T) {
	w := watcher.Start(t.TempDir())
	if w == nil {
		t.Skip("OS watcher unavailable in this environment")
	}
	defer w.Stop()
	assert.Empty(t, w.Recent())
}

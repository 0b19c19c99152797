package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStemCaseBoundary(t *testing.T) {
	assert.Equal(t, []string{"My", "Widget"}, splitStem("MyWidget"))
}

func TestSplitStemPunctuation(t *testing.T) {
	assert.Equal(t, []string{"search", "orchestrator"}, splitStem("search_orchestrator"))
}

func TestGetBoostKeywordsFromPushedChanges(t *testing.T) {
	w := &Watcher{}
	w.push(Change{Filename: "MyWidget.rs"})
	w.push(Change{Filename: "plain.go"})
	assert.Equal(t, []string{"My", "Widget", "plain"}, w.GetBoostKeywords())
}

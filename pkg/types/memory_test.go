package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quietloop/pilot/pkg/types"
)

func TestIsValidKind(t *testing.T) {
	for _, k := range types.ValidKinds {
		assert.True(t, types.IsValidKind(k), "expected %q to be valid", k)
	}

	invalid := []types.Kind{"", "facts", "FACT", "unknown"}
	for _, k := range invalid {
		assert.False(t, types.IsValidKind(k), "expected %q to be invalid", k)
	}
}

func TestClampImportance(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-5, 1}, {0, 1}, {1, 1}, {3, 3}, {5, 5}, {6, 5}, {100, 5},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, types.ClampImportance(c.in))
	}
}

func TestMemoryHasProject(t *testing.T) {
	m := types.Memory{}
	assert.False(t, m.HasProject())

	m.Project = "pilot"
	assert.True(t, m.HasProject())
}

func TestMemoryHasTag(t *testing.T) {
	m := types.Memory{Tags: []string{"Backend", "rust"}}

	assert.True(t, m.HasTag("backend"))
	assert.True(t, m.HasTag("RUST"))
	assert.False(t, m.HasTag("frontend"))
}

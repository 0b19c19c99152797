package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

const exportLimit = 10000

// Export renders up to 10,000 memories in project (or all, if empty) as
// pretty-printed JSON or a Markdown document grouped by kind.
func (s *Store) Export(ctx context.Context, project, format string) (string, error) {
	// List clamps each page to 1000 rows, so page until exportLimit is reached.
	var items []types.Memory
	for len(items) < exportLimit {
		page, _, err := s.List(ctx, storage.ListOptions{Project: project, Limit: 1000, Offset: len(items)})
		if err != nil {
			return "", err
		}
		items = append(items, page...)
		if len(page) < 1000 {
			break
		}
	}

	switch format {
	case "json":
		out, err := json.MarshalIndent(items, "", "  ")
		if err != nil {
			return "", fmt.Errorf("sqlite: export json: %w", err)
		}
		return string(out), nil
	case "markdown", "md":
		return renderMarkdown(project, items), nil
	default:
		return "", fmt.Errorf("sqlite: export: %w: %q", storage.ErrInvalidFormat, format)
	}
}

func renderMarkdown(project string, items []types.Memory) string {
	title := project
	if title == "" {
		title = "All Memories"
	}

	byKind := make(map[types.Kind][]types.Memory)
	var kinds []string
	for _, m := range items {
		if _, ok := byKind[m.Kind]; !ok {
			kinds = append(kinds, string(m.Kind))
		}
		byKind[m.Kind] = append(byKind[m.Kind], m)
	}
	sort.Strings(kinds)

	var b strings.Builder
	fmt.Fprintf(&b, "# Pilot Export: %s\n\n", title)
	fmt.Fprintf(&b, "Total: %d memories\n\n", len(items))

	for _, k := range kinds {
		mems := byKind[types.Kind(k)]
		fmt.Fprintf(&b, "## %s (%d)\n\n", k, len(mems))
		for _, m := range mems {
			tags := ""
			for _, t := range m.Tags {
				tags += " `" + t + "`"
			}
			fmt.Fprintf(&b, "- [%s] %s%s\n", strings.Repeat("★", m.Importance), m.Content, tags)
		}
		b.WriteString("\n")
	}
	return b.String()
}

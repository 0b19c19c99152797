// Package migrate ingests the legacy v1 JSON memory stores (global.json and
// projects/*.json) into the current SQLite-backed store.
package migrate

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

// legacyKindRemap maps v1 kind/type names to the current closed Kind set.
var legacyKindRemap = map[string]types.Kind{
	"context":      types.KindFact,
	"architecture": types.KindDecision,
	"component":    types.KindPattern,
	"workflow":     types.KindPattern,
}

type v1Store struct {
	Memories []json.RawMessage `json:"memories"`
}

type v1Memory struct {
	Content string   `json:"content"`
	Kind    string   `json:"kind"`
	Type    string   `json:"type"`
	Tags    []string `json:"tags"`
	Source  string   `json:"source"`
}

// Run reads legacyHome/global.json and legacyHome/projects/*.json, remaps
// legacy kinds, and inserts every non-empty memory via ImportBatch (which
// skips content that already exists verbatim). Returns the count actually
// inserted.
func Run(ctx context.Context, store storage.Store, legacyHome string) (int, error) {
	var items []storage.ImportItem

	globalPath := filepath.Join(legacyHome, "global.json")
	if data, err := os.ReadFile(globalPath); err == nil {
		items = append(items, parseV1Store(data, "")...)
	}

	projectsDir := filepath.Join(legacyHome, "projects")
	entries, err := os.ReadDir(projectsDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			projectName := strings.TrimSuffix(e.Name(), ".json")
			data, err := os.ReadFile(filepath.Join(projectsDir, e.Name()))
			if err != nil {
				continue
			}
			items = append(items, parseV1Store(data, projectName)...)
		}
	}

	if len(items) == 0 {
		return 0, nil
	}
	return store.ImportBatch(ctx, items)
}

func parseV1Store(data []byte, project string) []storage.ImportItem {
	var v1 v1Store
	if err := json.Unmarshal(data, &v1); err != nil {
		return nil
	}
	var out []storage.ImportItem
	for _, entry := range v1.Memories {
		var m v1Memory
		if err := json.Unmarshal(entry, &m); err != nil {
			continue
		}
		if m.Content == "" {
			continue
		}
		raw := m.Kind
		if raw == "" {
			raw = m.Type
		}
		if raw == "" {
			raw = "fact"
		}
		kind, ok := legacyKindRemap[raw]
		if !ok {
			kind = types.Kind(raw)
			if !types.IsValidKind(kind) {
				kind = types.KindFact
			}
		}
		source := m.Source
		if source == "" {
			source = "v1-import"
		}
		out = append(out, storage.ImportItem{
			Content: m.Content,
			Kind:    kind,
			Project: project,
			Tags:    m.Tags,
			Source:  source,
		})
	}
	return out
}

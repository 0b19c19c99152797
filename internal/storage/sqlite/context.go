package sqlite

import (
	"context"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

// ProjectContext aggregates a project's memories with global
// preference/pattern/snippet memories for the get_project_context tool.
func (s *Store) ProjectContext(ctx context.Context, project, workingDir string) (storage.ProjectContext, error) {
	var pc storage.ProjectContext

	name := project
	if name == "" && workingDir != "" {
		detected, err := s.DetectProject(ctx, workingDir)
		if err == nil {
			name = detected
		}
	}
	pc.Project = name

	if name != "" {
		items, total, err := s.List(ctx, storage.ListOptions{Project: name, Limit: 100})
		if err != nil {
			return pc, err
		}
		pc.ProjectMemories = items
		pc.ProjectMemoryCount = total
	}

	prefs, _, err := s.List(ctx, storage.ListOptions{GlobalOnly: true, Kind: types.KindPreference, Limit: 50})
	if err != nil {
		return pc, err
	}
	pc.GlobalPreferences = prefs

	patterns, _, err := s.List(ctx, storage.ListOptions{GlobalOnly: true, Kind: types.KindPattern, Limit: 50})
	if err != nil {
		return pc, err
	}
	pc.GlobalPatterns = patterns

	snippets, _, err := s.List(ctx, storage.ListOptions{GlobalOnly: true, Kind: types.KindSnippet, Limit: 20})
	if err != nil {
		return pc, err
	}
	pc.GlobalSnippets = snippets

	return pc, nil
}

// ImportBatch inserts memories from a legacy or bulk import, skipping
// content that already exists verbatim. Items that pass that exact-match
// check are written through Add, so one that is a near-duplicate (Add's
// Jaccard dedup) is merged into the existing memory instead. The returned
// count covers fresh inserts only, not merges.
func (s *Store) ImportBatch(ctx context.Context, items []storage.ImportItem) (int, error) {
	count := 0
	for _, item := range items {
		var exists bool
		if err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM memories WHERE content=?)", item.Content).
			Scan(&exists); err != nil {
			continue
		}
		if exists {
			continue
		}
		m := &types.Memory{
			Content:    item.Content,
			Kind:       item.Kind,
			Project:    item.Project,
			Tags:       item.Tags,
			Source:     item.Source,
			Importance: 3,
		}
		if _, merged, err := s.Add(ctx, m); err != nil || merged {
			continue
		}
		count++
	}
	return count, nil
}

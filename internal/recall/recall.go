// Package recall implements the composite retrieval endpoints layered over
// storage.Store's list/search primitives: the project "brain" (a
// token-bounded context digest) and the top-level recall endpoint that
// blends project memories, global preferences/patterns/decisions,
// high-importance items, an optional hint-driven search, and the global
// prompt.
package recall

import (
	"context"
	"time"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

// brainByteBudget is the default ~1500-token (~6000 char) budget for
// get_project_brain.
const brainByteBudget = 6000

// Brain is the accumulated project-context digest, built up to a byte
// budget in priority order.
//
// There is no surviving "architecture" kind in the current closed kind set
// (legacy migration remaps it to decision), so this tier surfaces the
// project's most-recently-updated items regardless of kind instead of
// filtering on a kind that no longer exists.
type Brain struct {
	Project           string         `json:"project"`
	TechEntities      []string       `json:"tech_entities"`
	RecentItems       []types.Memory `json:"recent_items"`
	Decisions         []types.Memory `json:"decisions"`
	Bugs              []types.Memory `json:"bugs"`
	RecentlyUpdated   []types.Memory `json:"recently_updated"`
	ComponentEntities []EntityRef    `json:"component_entities"`
	Truncated         bool           `json:"truncated"`
}

// EntityRef is a minimal (kind, value) pair surfaced in the brain digest.
type EntityRef struct {
	Kind  types.EntityKind `json:"kind"`
	Value string           `json:"value"`
}

// ProjectBrain builds a token-bounded digest of a project's most
// load-bearing context: tech entities, recent items, decisions, bugs,
// and recent activity, accumulated in priority order until the byte budget
// is spent.
func ProjectBrain(ctx context.Context, store storage.Store, project string) (Brain, error) {
	brain := Brain{Project: project}
	budget := brainByteBudget
	spend := func(n int) bool {
		if budget <= 0 {
			return false
		}
		budget -= n
		return true
	}

	if techs, err := store.ProjectEntities(ctx, project, types.EntityKindTech, 15); err == nil {
		brain.TechEntities = techs
		for _, t := range techs {
			spend(len(t))
		}
	}

	if budget > 0 {
		recent, _, err := store.List(ctx, storage.ListOptions{Project: project, Limit: 10})
		if err == nil {
			for _, m := range recent {
				if len(brain.RecentItems) >= 10 {
					break
				}
				if !spend(len(m.Content)) {
					brain.Truncated = true
					break
				}
				brain.RecentItems = append(brain.RecentItems, m)
			}
		}
	}

	if budget > 0 {
		decisions, _, err := store.List(ctx, storage.ListOptions{Project: project, Kind: types.KindDecision, Limit: 10})
		if err == nil {
			for _, m := range decisions {
				if !spend(len(m.Content)) {
					brain.Truncated = true
					break
				}
				brain.Decisions = append(brain.Decisions, m)
			}
		}
	}

	if budget > 0 {
		bugs, _, err := store.List(ctx, storage.ListOptions{Project: project, Kind: types.KindBug, Limit: 10})
		if err == nil {
			for _, m := range bugs {
				if !spend(len(m.Content)) {
					brain.Truncated = true
					break
				}
				brain.Bugs = append(brain.Bugs, m)
			}
		}
	}

	if budget > 0 {
		recent, _, err := store.List(ctx, storage.ListOptions{Project: project, Limit: 50})
		if err == nil {
			cutoff := time.Now().UTC().AddDate(0, 0, -7)
			for _, m := range recent {
				if len(brain.RecentlyUpdated) >= 10 {
					break
				}
				if m.UpdatedAt.Before(cutoff) {
					continue
				}
				if !spend(len(m.Content)) {
					brain.Truncated = true
					break
				}
				brain.RecentlyUpdated = append(brain.RecentlyUpdated, m)
			}
		}
	}

	if budget > 0 {
		for _, kind := range []types.EntityKind{types.EntityKindComponent, types.EntityKindFile} {
			if len(brain.ComponentEntities) >= 15 || budget <= 0 {
				break
			}
			values, err := store.ProjectEntities(ctx, project, kind, 15-len(brain.ComponentEntities))
			if err != nil {
				continue
			}
			for _, v := range values {
				if len(brain.ComponentEntities) >= 15 {
					break
				}
				if !spend(len(v)) {
					brain.Truncated = true
					break
				}
				brain.ComponentEntities = append(brain.ComponentEntities, EntityRef{Kind: kind, Value: v})
			}
		}
	}

	return brain, nil
}

// Result is the full payload returned by Recall.
type Result struct {
	Project           string         `json:"project"`
	ProjectMemories   []types.Memory `json:"project_memories"`
	ProjectTotal      int64          `json:"project_total"`
	Preferences       []types.Memory `json:"preferences"`
	Patterns          []types.Memory `json:"patterns"`
	Decisions         []types.Memory `json:"decisions"`
	HighImportance    []types.Memory `json:"high_importance"`
	HintResults       []storage.SearchResult `json:"hint_results,omitempty"`
	GlobalPrompt      string         `json:"global_prompt"`
}

// Recall assembles the top-level recall payload: up to 50 project items, 30
// preferences, 20 patterns, 20 decisions, up to 30 high-importance
// (importance >= 4) live items, an optional hint-driven search (limit 10),
// and the global prompt string.
func Recall(ctx context.Context, store storage.Store, project, workingDir, hint string) (Result, error) {
	var res Result

	name := project
	if name == "" && workingDir != "" {
		if detected, err := store.DetectProject(ctx, workingDir); err == nil {
			name = detected
		}
	}
	res.Project = name

	if name != "" {
		items, total, err := store.List(ctx, storage.ListOptions{Project: name, Limit: 50})
		if err != nil {
			return res, err
		}
		res.ProjectMemories = items
		res.ProjectTotal = total
	}

	prefs, _, err := store.List(ctx, storage.ListOptions{GlobalOnly: true, Kind: types.KindPreference, Limit: 30})
	if err != nil {
		return res, err
	}
	res.Preferences = prefs

	patterns, _, err := store.List(ctx, storage.ListOptions{GlobalOnly: true, Kind: types.KindPattern, Limit: 20})
	if err != nil {
		return res, err
	}
	res.Patterns = patterns

	decisions, _, err := store.List(ctx, storage.ListOptions{GlobalOnly: true, Kind: types.KindDecision, Limit: 20})
	if err != nil {
		return res, err
	}
	res.Decisions = decisions

	res.HighImportance = highImportance(ctx, store, 30)

	if hint != "" {
		hits, err := store.Search(ctx, storage.SearchOptions{Query: hint, Project: name, Limit: 10})
		if err == nil {
			res.HintResults = hits
		}
	}

	prompt, err := store.GlobalPrompt(ctx, name, workingDir)
	if err == nil {
		res.GlobalPrompt = prompt
	}

	return res, nil
}

// highImportance scans listed items (there's no direct importance-filtered
// list primitive) for importance >= 4 with a live TTL, up to limit.
func highImportance(ctx context.Context, store storage.Store, limit int) []types.Memory {
	items, _, err := store.List(ctx, storage.ListOptions{Limit: 1000})
	if err != nil {
		return nil
	}
	now := time.Now().UTC()
	var out []types.Memory
	for _, m := range items {
		if m.Importance < 4 {
			continue
		}
		if m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, m)
		if len(out) >= limit {
			break
		}
	}
	return out
}

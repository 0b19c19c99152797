// Package gc implements the heuristic garbage collector: scoring items for
// collection, merging aged low-value groups into a single condensed item,
// deleting expired items, and pruning orphan graph edges.
package gc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

// Config tunes one GC cycle. Zero value is invalid; use DefaultConfig.
type Config struct {
	AgeDays              int
	ImportanceThreshold  int
	MaxMergeGroup        int
	CompressibleKinds    []types.Kind
}

// DefaultConfig returns the baseline GC tuning.
func DefaultConfig() Config {
	return Config{
		AgeDays:             30,
		ImportanceThreshold: 3,
		MaxMergeGroup:       10,
		CompressibleKinds:   []types.Kind{types.KindBug, types.KindSnippet, types.KindNote, types.KindTodo},
	}
}

// Report summarizes one GC cycle's effect.
type Report struct {
	ExpiredRemoved      int    `json:"expired_removed"`
	GroupsMerged        int    `json:"groups_merged"`
	MemoriesCompressed  int    `json:"memories_compressed"`
	OrphanLinksRemoved  int    `json:"orphan_links_removed"`
	DBSizeBefore        string `json:"db_size_before"`
	DBSizeAfter         string `json:"db_size_after"`
}

var kindWeights = map[types.Kind]float64{
	types.KindTodo:       1.2,
	types.KindBug:        1.0,
	types.KindNote:       0.9,
	types.KindSnippet:    0.6,
	types.KindDecision:   0.3,
	types.KindPreference: 0.2,
	types.KindPattern:    0.2,
	types.KindFact:       0.4,
	types.KindCredential: 0.1,
}

const defaultKindWeight = 0.5

// Score returns a memory's GC candidacy in [0,1]; higher means more
// collectable.
func Score(importance int, ageDays float64, kind types.Kind) float64 {
	importanceScore := 1.0 - (float64(importance)-1.0)/4.0
	ageFactor := ageDays / 365.0
	if ageFactor > 1 {
		ageFactor = 1
	}
	weight, ok := kindWeights[kind]
	if !ok {
		weight = defaultKindWeight
	}
	score := importanceScore*0.4 + ageFactor*0.3 + weight*0.3
	if score > 1 {
		score = 1
	}
	return score
}

// Run executes one GC cycle against store. When dryRun is true, Run performs
// no merge, delete or orphan prune of its own and the report reflects what
// would have changed; the store's List calls it makes still delete memories
// whose expiry has passed.
func Run(ctx context.Context, store storage.Store, cfg Config, dryRun bool) (Report, error) {
	var report Report

	before, err := store.Stats(ctx)
	if err != nil {
		return report, err
	}
	report.DBSizeBefore = before.DBSize

	if dryRun {
		n, err := store.CountExpired(ctx)
		if err != nil {
			return report, err
		}
		report.ExpiredRemoved = n
	} else {
		n, err := store.CleanupExpired(ctx)
		if err != nil {
			return report, err
		}
		report.ExpiredRemoved = n
	}

	now := time.Now().UTC()
	for _, kind := range cfg.CompressibleKinds {
		items, _, err := store.List(ctx, storage.ListOptions{Kind: kind, Limit: 1000})
		if err != nil {
			continue
		}

		var candidates []types.Memory
		for _, m := range items {
			ageDays := now.Sub(m.CreatedAt).Hours() / 24
			if m.Importance >= cfg.ImportanceThreshold {
				continue
			}
			if ageDays < float64(cfg.AgeDays) {
				continue
			}
			if Score(m.Importance, ageDays, kind) <= 0.6 {
				continue
			}
			candidates = append(candidates, m)
		}
		if len(candidates) == 0 {
			continue
		}

		buckets := make(map[string][]types.Memory)
		for _, m := range candidates {
			buckets[m.Project] = append(buckets[m.Project], m)
		}

		for project, group := range buckets {
			if len(group) < 2 {
				continue
			}
			if len(group) > cfg.MaxMergeGroup {
				group = group[:cfg.MaxMergeGroup]
			}
			report.GroupsMerged++
			report.MemoriesCompressed += len(group)

			if dryRun {
				continue
			}

			merged := mergeGroup(group, kind)
			newMem := &types.Memory{
				Content:    merged,
				Kind:       kind,
				Project:    project,
				Tags:       []string{"merged"},
				Importance: 3,
			}
			if _, _, err := store.Add(ctx, newMem); err != nil {
				continue
			}
			for _, m := range group {
				_ = store.Delete(ctx, m.ID)
			}
		}
	}

	if !dryRun {
		n, err := store.PruneOrphans(ctx)
		if err != nil {
			return report, err
		}
		report.OrphanLinksRemoved = n
	}

	after, err := store.Stats(ctx)
	if err != nil {
		return report, err
	}
	report.DBSizeAfter = after.DBSize
	return report, nil
}

var kindLabels = map[types.Kind]string{
	types.KindBug:     "Bugs",
	types.KindSnippet: "Code snippets",
	types.KindNote:    "Notes",
	types.KindTodo:    "TODOs",
}

// mergeGroup builds the "[MERGED] ..." condensed content for a group of
// same-kind, same-project memories: top-5 non-stopword tokens as subject,
// then up to 8 first-sentence bullets.
func mergeGroup(group []types.Memory, kind types.Kind) string {
	if len(group) == 1 {
		return group[0].Content
	}

	freq := make(map[string]int)
	for _, m := range group {
		seen := make(map[string]bool)
		for _, w := range strings.Fields(m.Content) {
			w = strings.ToLower(trimNonAlnum(w))
			if len(w) > 3 && !stopwords[w] && !seen[w] {
				seen[w] = true
				freq[w]++
			}
		}
	}
	type kv struct {
		word  string
		count int
	}
	var pairs []kv
	for w, c := range freq {
		pairs = append(pairs, kv{w, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].word < pairs[j].word
	})
	var top []string
	for i := 0; i < len(pairs) && i < 5; i++ {
		top = append(top, pairs[i].word)
	}
	subject := strings.Join(top, ", ")

	label, ok := kindLabels[kind]
	if !ok {
		label = "Items"
	}

	var bullets []string
	for _, m := range group {
		trimmed := strings.TrimSpace(m.Content)
		end := len(trimmed)
		if end > 120 {
			end = 120
		}
		if i := strings.Index(trimmed, ". "); i >= 0 && i+1 < end {
			end = i + 1
		}
		sentence := trimmed[:end]
		if len(sentence) > 5 {
			bullets = append(bullets, "- "+sentence)
		}
		if len(bullets) >= 8 {
			break
		}
	}

	return fmt.Sprintf("[MERGED] %s related to: %s. (%d items compressed)\n%s",
		label, subject, len(group), strings.Join(bullets, "\n"))
}

func trimNonAlnum(s string) string {
	isAlnum := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
	}
	return strings.TrimFunc(s, func(r rune) bool { return !isAlnum(r) })
}

// stopwords is a small fixed English/French list.
var stopwords = func() map[string]bool {
	words := []string{
		"the", "this", "that", "with", "from", "have", "been", "will",
		"should", "would", "could", "when", "where", "what", "which",
		"their", "there", "they", "them", "then", "than", "these",
		"those", "into", "some", "such", "also", "does",
		"done", "each", "just", "like", "make", "made", "more",
		"most", "much", "need", "only", "over", "very", "well",
		"about", "after", "again", "being", "other", "using",
		"dans", "pour", "avec", "cette", "sont", "mais", "plus",
		"tout", "tous", "toute", "comme", "faire", "fait", "peut",
		"sans", "encore", "entre", "aussi", "autre", "avant",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

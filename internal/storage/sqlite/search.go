package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/quietloop/pilot/internal/embedder"
	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

// candidatePassLimit bounds both the lexical and vector candidate passes at
// 100 rows each, independent of the caller's requested result limit.
const candidatePassLimit = 100

// lexicalCandidates runs the FTS5/BM25 side of hybrid search and returns
// results in rank order (best first): bm25(memories_fts, 10.0, 3.0, 1.0, 2.0)
// divided by importance, ascending (lower is better, so higher importance
// surfaces sooner for an equally-relevant match).
func (s *Store) lexicalCandidates(ctx context.Context, opts storage.SearchOptions) ([]types.Memory, error) {
	fields := strings.Fields(opts.Query)
	if len(fields) == 0 {
		return nil, nil
	}
	terms := make([]string, len(fields))
	for i, w := range fields {
		terms[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"*`
	}
	ftsQuery := strings.Join(terms, " ")

	conds := []string{"memories_fts MATCH ?"}
	args := []interface{}{ftsQuery}
	if opts.Project != "" {
		conds = append(conds, "m.project = ?")
		args = append(args, opts.Project)
	}
	if opts.Kind != "" {
		conds = append(conds, "m.kind = ?")
		args = append(args, opts.Kind)
	}
	args = append(args, candidatePassLimit)

	query := fmt.Sprintf(
		`SELECT %s, bm25(memories_fts, 10.0, 3.0, 1.0, 2.0) AS bm25_score
		 FROM memories_fts f JOIN memories m ON m.rowid = f.rowid
		 WHERE %s
		 ORDER BY (bm25_score / m.importance) ASC
		 LIMIT ?`, memoryColumns, strings.Join(conds, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: lexical search: %w", err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		var bm25 float64
		m, err := scanMemoryWithTrailing(rows, &bm25)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanMemoryWithTrailing scans the memory columns plus one extra trailing
// float column (used for bm25_score).
func scanMemoryWithTrailing(rows *sql.Rows, extra *float64) (types.Memory, error) {
	return scanMemory(trailingScanner{rows: rows, extra: extra})
}

// trailingScanner appends one extra destination to every Scan call so that
// scanMemory can decode the memory columns of a row that carries a trailing
// column.
type trailingScanner struct {
	rows  *sql.Rows
	extra *float64
}

func (t trailingScanner) Scan(dest ...interface{}) error {
	return t.rows.Scan(append(dest, t.extra)...)
}

// vectorCandidates brute-force scans stored embeddings and ranks by cosine
// similarity against the query embedding. There is no ANN index: the store
// is sized for a single user's local memory set, not a large corpus.
func (s *Store) vectorCandidates(ctx context.Context, opts storage.SearchOptions, limit int) ([]types.Memory, error) {
	queryVec := embedder.Embed(opts.Query)

	conds := []string{"embedding IS NOT NULL"}
	var args []interface{}
	if opts.Project != "" {
		conds = append(conds, "project = ?")
		args = append(args, opts.Project)
	}
	if opts.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, opts.Kind)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memories WHERE "+strings.Join(conds, " AND "), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector scan: %w", err)
	}
	defer rows.Close()

	type scored struct {
		m   types.Memory
		sim float64
	}
	var all []scored
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			continue
		}
		all = append(all, scored{m, embedder.CosineSimilarity(queryVec, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortScoredDesc(all)
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]types.Memory, len(all))
	for i, s := range all {
		out[i] = s.m
	}
	return out, nil
}

func sortScoredDesc(items []struct {
	m   types.Memory
	sim float64
}) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].sim > items[j-1].sim; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// linkBoostDeltas maps a relation type to the per-edge score adjustment
// accumulated against its target.
var linkBoostDeltas = map[types.RelationType]float64{
	types.RelationDeprecates: -0.9,
	types.RelationDependsOn:  0.1,
	types.RelationImplements: 0.1,
	types.RelationResolves:   0.1,
}

const otherLinkDelta = 0.05

// incomingLinkBoosts sums per-edge score deltas for every memory in ids,
// aggregated over the entire links table: the graph-link boost is computed
// from all incoming edges on every call.
func (s *Store) incomingLinkBoosts(ctx context.Context, ids []string) (map[string]float64, error) {
	boosts := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return boosts, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT target_id, relation_type FROM memory_links WHERE target_id IN ("+strings.Join(placeholders, ",")+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: link boosts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var target, relation string
		if err := rows.Scan(&target, &relation); err != nil {
			continue
		}
		delta, ok := linkBoostDeltas[types.RelationType(relation)]
		if !ok {
			delta = otherLinkDelta
		}
		boosts[target] += delta
	}
	return boosts, rows.Err()
}

// Search performs hybrid lexical+vector search, fuses rankings with
// reciprocal rank fusion, applies importance/graph/watcher/tag adjustments,
// and bumps access counters on every returned item.
func (s *Store) Search(ctx context.Context, opts storage.SearchOptions) ([]storage.SearchResult, error) {
	opts.Normalize()
	if strings.TrimSpace(opts.Query) == "" {
		return nil, nil
	}
	if _, err := s.CleanupExpired(ctx); err != nil {
		return nil, err
	}

	lexical, err := s.lexicalCandidates(ctx, opts)
	if err != nil {
		return nil, err
	}
	vector, err := s.vectorCandidates(ctx, opts, candidatePassLimit)
	if err != nil {
		return nil, err
	}

	lexRank := make(map[string]int, len(lexical))
	for i, m := range lexical {
		lexRank[m.ID] = i + 1
	}
	vecRank := make(map[string]int, len(vector))
	for i, m := range vector {
		vecRank[m.ID] = i + 1
	}

	byID := make(map[string]types.Memory, len(lexical)+len(vector))
	var order []string
	for _, m := range lexical {
		byID[m.ID] = m
		order = append(order, m.ID)
	}
	for _, m := range vector {
		if _, ok := byID[m.ID]; !ok {
			byID[m.ID] = m
			order = append(order, m.ID)
		}
	}

	boosts, err := s.incomingLinkBoosts(ctx, order)
	if err != nil {
		return nil, err
	}

	var results []storage.SearchResult
	for _, id := range order {
		m := byID[id]
		score := embedder.RRFScore(lexRank[id], vecRank[id])
		score *= float64(m.Importance) / 3.0
		score *= 1 + boosts[id]

		if len(opts.WatcherKeywords) > 0 {
			lowerContent := strings.ToLower(m.Content)
			matched := 0
			for _, kw := range distinctLower(opts.WatcherKeywords) {
				if strings.Contains(lowerContent, kw) {
					matched++
				}
			}
			score *= 1 + 0.2*float64(matched)
		}

		if len(opts.Tags) > 0 {
			if hasAnyTagFold(m.Tags, opts.Tags) {
				score *= 1.5
			} else {
				score *= 0.1
			}
		}

		results = append(results, storage.SearchResult{Memory: m, Score: roundTo4(score)})
	}

	sortResultsDesc(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	s.bumpAccess(ctx, results)
	return results, nil
}

// bumpAccess increments access_count and sets last_accessed_at for every
// returned result, the documented side effect of a search call.
func (s *Store) bumpAccess(ctx context.Context, results []storage.SearchResult) {
	now := time.Now().UTC().Format(time.RFC3339)
	for i := range results {
		_, _ = s.db.ExecContext(ctx,
			"UPDATE memories SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?",
			now, results[i].Memory.ID)
		results[i].Memory.AccessCount++
		t := parseRFC3339(now)
		results[i].Memory.LastAccessedAt = &t
	}
}

func roundTo4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func distinctLower(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		l := strings.ToLower(s)
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

func hasAnyTagFold(tags, want []string) bool {
	for _, t := range tags {
		for _, w := range want {
			if strings.EqualFold(t, w) {
				return true
			}
		}
	}
	return false
}

func sortResultsDesc(results []storage.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

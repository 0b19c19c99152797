package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/quietloop/pilot/internal/embedder"
	"github.com/quietloop/pilot/internal/storage"
)

// CountExpired reports how many memories are currently past expires_at,
// without deleting them.
func (s *Store) CountExpired(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE expires_at IS NOT NULL AND expires_at < ?",
		time.Now().UTC().Format(time.RFC3339)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count expired: %w", err)
	}
	return n, nil
}

// PruneOrphans deletes memory_entities/memory_links rows whose memory_id no
// longer has a backing row. Foreign-key cascades make this normally a no-op;
// it runs as a defensive sweep after GC compaction.
func (s *Store) PruneOrphans(ctx context.Context) (int, error) {
	var removed int64
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM memory_entities WHERE memory_id NOT IN (SELECT id FROM memories)")
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune orphan entities: %w", err)
	}
	n, _ := res.RowsAffected()
	removed += n

	res, err = s.db.ExecContext(ctx,
		"DELETE FROM memory_links WHERE source_id NOT IN (SELECT id FROM memories) OR target_id NOT IN (SELECT id FROM memories)")
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune orphan links: %w", err)
	}
	n, _ = res.RowsAffected()
	removed += n

	return int(removed), nil
}

// Stats summarizes the store's current contents, with its on-disk size
// formatted as bytes / KiB / MiB with one decimal.
func (s *Store) Stats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats
	stats.ByKind = make(map[string]int64)
	stats.ByProject = make(map[string]int64)

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories").Scan(&stats.TotalMemories); err != nil {
		return stats, fmt.Errorf("sqlite: stats total: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE project IS NULL").Scan(&stats.GlobalCount); err != nil {
		return stats, fmt.Errorf("sqlite: stats global: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&stats.Projects); err != nil {
		return stats, fmt.Errorf("sqlite: stats projects: %w", err)
	}
	expired, err := s.CountExpired(ctx)
	if err != nil {
		return stats, err
	}
	stats.ExpiredCount = int64(expired)

	kindRows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM memories GROUP BY kind")
	if err != nil {
		return stats, fmt.Errorf("sqlite: stats by kind: %w", err)
	}
	for kindRows.Next() {
		var kind string
		var n int64
		if err := kindRows.Scan(&kind, &n); err == nil {
			stats.ByKind[kind] = n
		}
	}
	kindRows.Close()

	projRows, err := s.db.QueryContext(ctx, "SELECT COALESCE(project,'__global__'), COUNT(*) FROM memories GROUP BY project")
	if err != nil {
		return stats, fmt.Errorf("sqlite: stats by project: %w", err)
	}
	for projRows.Next() {
		var proj string
		var n int64
		if err := projRows.Scan(&proj, &n); err == nil {
			stats.ByProject[proj] = n
		}
	}
	projRows.Close()

	stats.DBSize = formatSize(s.fileSize())
	return stats, nil
}

func (s *Store) fileSize() int64 {
	if s.path == "" {
		return 0
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// formatSize renders bytes as plain bytes under 1024, integer KiB under
// 1MiB, and one-decimal MiB otherwise.
func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1048576:
		return fmt.Sprintf("%d KB", n/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/1048576.0)
	}
}

// BackfillEmbeddings recomputes the embedding for every memory whose
// embedding column is NULL or empty — rows written before the embedding
// column existed, or carried over from a bulk import that bypassed Add's
// normal embed-on-write path. Returns the number of rows updated.
func (s *Store) BackfillEmbeddings(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, content FROM memories WHERE embedding IS NULL OR length(embedding) = 0")
	if err != nil {
		return 0, fmt.Errorf("sqlite: backfill select: %w", err)
	}
	type pending struct{ id, content string }
	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.content); err != nil {
			rows.Close()
			return 0, fmt.Errorf("sqlite: backfill scan: %w", err)
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var n int
	for _, p := range todo {
		blob := embedder.VecToBlob(embedder.Embed(p.content))
		if _, err := s.db.ExecContext(ctx, "UPDATE memories SET embedding=? WHERE id=?", blob, p.id); err != nil {
			continue
		}
		n++
	}
	return n, nil
}

// GetConfig reads a single config value.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key=?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get config: %w", err)
	}
	return value, true, nil
}

// SetConfig upserts a config value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO config (key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("sqlite: set config: %w", err)
	}
	return nil
}

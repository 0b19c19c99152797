package sqlite

import (
	"context"
	"fmt"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

// AddEntities replaces the entity set attached to memoryID. Called after
// every write so a memory's entities always equal ExtractEntities(content,
// project).
func (s *Store) AddEntities(ctx context.Context, memoryID string, entities []types.MemoryEntity) error {
	for _, e := range entities {
		if !types.IsValidEntityKind(e.EntityKind) {
			return fmt.Errorf("sqlite: add entities: %w: unknown entity kind %q", storage.ErrInvalidInput, e.EntityKind)
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: add entities: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_entities WHERE memory_id = ?", memoryID); err != nil {
		return fmt.Errorf("sqlite: clear entities: %w", err)
	}
	for _, e := range entities {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO memory_entities (memory_id, entity_kind, entity_value) VALUES (?,?,?)",
			memoryID, e.EntityKind, e.EntityValue); err != nil {
			return fmt.Errorf("sqlite: insert entity: %w", err)
		}
	}
	return tx.Commit()
}

// ProjectEntities returns up to limit distinct entity values of kind
// extracted from memories scoped to project, most-referenced first.
func (s *Store) ProjectEntities(ctx context.Context, project string, kind types.EntityKind, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.entity_value, COUNT(*) AS cnt
		 FROM memory_entities e JOIN memories m ON m.id = e.memory_id
		 WHERE m.project = ? AND e.entity_kind = ?
		 GROUP BY e.entity_value ORDER BY cnt DESC LIMIT ?`,
		project, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: project entities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var value string
		var cnt int
		if err := rows.Scan(&value, &cnt); err == nil {
			out = append(out, value)
		}
	}
	return out, rows.Err()
}

// AddLink upserts a directed relation between two memories.
func (s *Store) AddLink(ctx context.Context, link types.MemoryLink) error {
	if !types.IsValidRelationType(link.RelationType) {
		return fmt.Errorf("sqlite: add link: %w: unknown relation type %q", storage.ErrInvalidInput, link.RelationType)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_links (source_id, target_id, relation_type) VALUES (?,?,?)
		 ON CONFLICT(source_id, target_id) DO UPDATE SET relation_type = excluded.relation_type`,
		link.SourceID, link.TargetID, link.RelationType)
	if err != nil {
		return fmt.Errorf("sqlite: add link: %w", err)
	}
	return nil
}

// sharedEntityNeighbors returns up to maxNeighbors memory ids that share at
// least one (kind, value) entity with id, capped at 10 target ids per
// shared entity.
func (s *Store) sharedEntityNeighbors(ctx context.Context, id string, maxNeighbors int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT b.memory_id FROM memory_entities a
		 JOIN memory_entities b ON a.entity_kind = b.entity_kind AND a.entity_value = b.entity_value
		 WHERE a.memory_id = ? AND b.memory_id != ?
		 LIMIT ?`, id, id, maxNeighbors)
	if err != nil {
		return nil, fmt.Errorf("sqlite: shared entity neighbors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var other string
		if err := rows.Scan(&other); err != nil {
			continue
		}
		out = append(out, other)
	}
	return out, rows.Err()
}

// RelatedMemories returns memories directly linked to id (either direction)
// plus, at hop 2, memories sharing an entity with id.
func (s *Store) RelatedMemories(ctx context.Context, id string, maxHops int) ([]types.Memory, error) {
	ids := make(map[string]bool)

	rows, err := s.db.QueryContext(ctx,
		"SELECT target_id FROM memory_links WHERE source_id = ? UNION SELECT source_id FROM memory_links WHERE target_id = ?",
		id, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: related memories: %w", err)
	}
	for rows.Next() {
		var other string
		if err := rows.Scan(&other); err == nil {
			ids[other] = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if maxHops >= 2 {
		neighbors, err := s.sharedEntityNeighbors(ctx, id, 10)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			ids[n] = true
		}
	}

	var out []types.Memory
	for other := range ids {
		m, err := s.Get(ctx, other)
		if err == nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

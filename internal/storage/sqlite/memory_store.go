package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quietloop/pilot/internal/embedder"
	"github.com/quietloop/pilot/internal/graph"
	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

const dedupThreshold = 0.85
const dedupScanLimit = 200

const memoryColumns = "id,content,kind,project,tags,source,importance,expires_at,metadata,embedding,created_at,updated_at,last_accessed_at,access_count"

func scanMemory(row interface{ Scan(dest ...interface{}) error }) (types.Memory, error) {
	var m types.Memory
	var project, expiresAt, metadata, lastAccessed sql.NullString
	var tagsJSON string
	var embedding []byte
	var createdAt, updatedAt string

	err := row.Scan(&m.ID, &m.Content, &m.Kind, &project, &tagsJSON, &m.Source,
		&m.Importance, &expiresAt, &metadata, &embedding, &createdAt, &updatedAt,
		&lastAccessed, &m.AccessCount)
	if err != nil {
		return m, err
	}

	m.Project = project.String
	_ = json.Unmarshal([]byte(tagsJSON), &m.Tags)
	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &m.Metadata)
	}
	if expiresAt.Valid {
		t, err := time.Parse(time.RFC3339, expiresAt.String)
		if err == nil {
			m.ExpiresAt = &t
		}
	}
	if lastAccessed.Valid {
		t, err := time.Parse(time.RFC3339, lastAccessed.String)
		if err == nil {
			m.LastAccessedAt = &t
		}
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if len(embedding) > 0 {
		m.Embedding = embedder.BlobToVec(embedding)
	}
	return m, nil
}

// normalize lowercases text and collapses everything but alphanumerics and
// spaces into single spaces, for word-level Jaccard comparison.
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// jaccard is the word-level Jaccard similarity between two normalized strings.
func jaccard(a, b string) float64 {
	aWords := strings.Fields(a)
	bWords := strings.Fields(b)
	if len(aWords) == 0 && len(bWords) == 0 {
		return 1.0
	}
	set := make(map[string]int, len(aWords)+len(bWords))
	for _, w := range aWords {
		set[w] |= 1
	}
	for _, w := range bWords {
		set[w] |= 2
	}
	var inter, union int
	for _, v := range set {
		union++
		if v == 3 {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func (s *Store) findDuplicate(ctx context.Context, content, project string) (*types.Memory, error) {
	norm := normalize(content)

	var rows *sql.Rows
	var err error
	if project != "" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+memoryColumns+" FROM memories WHERE project=? ORDER BY updated_at DESC LIMIT ?",
			project, dedupScanLimit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+memoryColumns+" FROM memories WHERE project IS NULL ORDER BY updated_at DESC LIMIT ?",
			dedupScanLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: dedup scan: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			continue
		}
		if m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			continue
		}
		if jaccard(norm, normalize(m.Content)) >= dedupThreshold {
			return &m, nil
		}
	}
	return nil, rows.Err()
}

// Add inserts content, merging into a near-duplicate within the same project
// scope if one scores >= dedupThreshold on word-level Jaccard similarity.
func (s *Store) Add(ctx context.Context, m *types.Memory) (*types.Memory, bool, error) {
	if strings.TrimSpace(m.Content) == "" {
		return nil, false, fmt.Errorf("sqlite: add: %w: content is empty", storage.ErrInvalidInput)
	}
	if !types.IsValidKind(m.Kind) {
		return nil, false, fmt.Errorf("sqlite: add: %w: unknown kind %q", storage.ErrInvalidInput, m.Kind)
	}
	if m.Importance == 0 {
		m.Importance = 3 // 3 is the default when the caller omits it
	}
	m.Importance = types.ClampImportance(m.Importance)

	existing, err := s.findDuplicate(ctx, m.Content, m.Project)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		content := existing.Content
		if len(m.Content) > len(existing.Content) {
			content = m.Content
		}
		importance := existing.Importance
		if m.Importance > importance {
			importance = m.Importance
		}
		tags := append([]string{}, existing.Tags...)
		for _, t := range m.Tags {
			if !containsFold(tags, t) {
				tags = append(tags, t)
			}
		}
		patch := storage.MemoryPatch{
			Content:    &content,
			Tags:       &tags,
			Importance: &importance,
		}
		if m.ExpiresAt != nil {
			patch.SetExpiresAt = true
			patch.ExpiresAt = m.ExpiresAt
		}
		updated, err := s.Update(ctx, existing.ID, patch)
		if err != nil {
			return nil, false, err
		}
		return updated, true, nil
	}

	now := time.Now().UTC()
	m.ID = uuid.New().String()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Source == "" {
		m.Source = "cursor"
	}

	tagsJSON, _ := json.Marshal(m.Tags)
	var metaJSON []byte
	if m.Metadata != nil {
		metaJSON, _ = json.Marshal(m.Metadata)
	}
	var expiresAt *string
	if m.ExpiresAt != nil {
		v := m.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &v
	}
	m.Embedding = embedder.Embed(m.Content)
	embeddingBlob := embedder.VecToBlob(m.Embedding)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id,content,kind,project,tags,source,importance,expires_at,metadata,embedding,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Content, m.Kind, nullable(m.Project), string(tagsJSON), m.Source,
		m.Importance, expiresAt, nullableBytes(metaJSON), embeddingBlob, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: insert: %w", err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: last insert id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO memories_fts (rowid,content,tags,kind,project) VALUES (?,?,?,?,?)",
		rowID, m.Content, string(tagsJSON), m.Kind, m.Project); err != nil {
		return nil, false, fmt.Errorf("sqlite: fts insert: %w", err)
	}

	if m.Project != "" {
		_ = s.EnsureProject(ctx, m.Project)
	}
	s.rebuildGraph(ctx, m)

	return m, false, nil
}

// Get retrieves a memory by ID. An expired memory is reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memories WHERE id=?", id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}
	if m.ExpiresAt != nil && m.ExpiresAt.Before(time.Now().UTC()) {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

// Update applies patch to the memory identified by id and rebuilds its FTS row.
func (s *Store) Update(ctx context.Context, id string, patch storage.MemoryPatch) (*types.Memory, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	content := existing.Content
	if patch.Content != nil {
		content = *patch.Content
	}
	kind := existing.Kind
	if patch.Kind != nil {
		if !types.IsValidKind(*patch.Kind) {
			return nil, fmt.Errorf("sqlite: update: %w: unknown kind %q", storage.ErrInvalidInput, *patch.Kind)
		}
		kind = *patch.Kind
	}
	tags := existing.Tags
	if patch.Tags != nil {
		tags = *patch.Tags
	}
	importance := existing.Importance
	if patch.Importance != nil {
		importance = types.ClampImportance(*patch.Importance)
	}
	var expiresAt *string
	switch {
	case !patch.SetExpiresAt:
		if existing.ExpiresAt != nil {
			v := existing.ExpiresAt.UTC().Format(time.RFC3339)
			expiresAt = &v
		}
	case patch.ExpiresAt == nil:
		expiresAt = nil
	default:
		v := patch.ExpiresAt.UTC().Format(time.RFC3339)
		expiresAt = &v
	}

	now := time.Now().UTC()
	tagsJSON, _ := json.Marshal(tags)
	embedding := embedder.Embed(content)
	embeddingBlob := embedder.VecToBlob(embedding)

	if _, err := s.db.ExecContext(ctx,
		"UPDATE memories SET content=?,kind=?,tags=?,importance=?,expires_at=?,embedding=?,updated_at=? WHERE id=?",
		content, kind, string(tagsJSON), importance, expiresAt, embeddingBlob, now.Format(time.RFC3339), id); err != nil {
		return nil, fmt.Errorf("sqlite: update: %w", err)
	}

	var rowID int64
	if err := s.db.QueryRowContext(ctx, "SELECT rowid FROM memories WHERE id=?", id).Scan(&rowID); err == nil {
		_, _ = s.db.ExecContext(ctx, "DELETE FROM memories_fts WHERE rowid=?", rowID)
		_, _ = s.db.ExecContext(ctx, "INSERT INTO memories_fts (rowid,content,tags,kind,project) VALUES (?,?,?,?,?)",
			rowID, content, string(tagsJSON), kind, existing.Project)
	}

	existing.Content = content
	existing.Kind = kind
	existing.Tags = tags
	existing.Importance = importance
	existing.Embedding = embedding
	existing.UpdatedAt = now
	if expiresAt != nil {
		t, _ := time.Parse(time.RFC3339, *expiresAt)
		existing.ExpiresAt = &t
	} else {
		existing.ExpiresAt = nil
	}
	s.rebuildGraph(ctx, existing)
	return existing, nil
}

// Delete permanently removes a memory, its FTS row, its entities and links
// (cascaded by foreign keys).
func (s *Store) Delete(ctx context.Context, id string) error {
	var rowID int64
	if err := s.db.QueryRowContext(ctx, "SELECT rowid FROM memories WHERE id=?", id).Scan(&rowID); err == nil {
		_, _ = s.db.ExecContext(ctx, "DELETE FROM memories_fts WHERE rowid=?", rowID)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List returns memories matching opts, most recently updated first.
func (s *Store) List(ctx context.Context, opts storage.ListOptions) ([]types.Memory, int64, error) {
	opts.Normalize()
	if _, err := s.CleanupExpired(ctx); err != nil {
		return nil, 0, err
	}

	var conds []string
	var args []interface{}
	switch {
	case opts.GlobalOnly:
		conds = append(conds, "project IS NULL")
	case opts.Project != "":
		conds = append(conds, "project=?")
		args = append(args, opts.Project)
	}
	if opts.Kind != "" {
		conds = append(conds, "kind=?")
		args = append(args, opts.Kind)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: count: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memoryColumns+" FROM memories"+where+" ORDER BY updated_at DESC LIMIT ? OFFSET ?", listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite: list scan: %w", err)
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, total, rows.Err()
}

// CleanupExpired deletes every memory past its expires_at.
func (s *Store) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	_, _ = s.db.ExecContext(ctx,
		"DELETE FROM memories_fts WHERE rowid IN (SELECT rowid FROM memories WHERE expires_at IS NOT NULL AND expires_at < ?)", now)
	res, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE expires_at IS NOT NULL AND expires_at < ?", now)
	if err != nil {
		return 0, fmt.Errorf("sqlite: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// rebuildGraph recomputes entities for m and links m to up to 10 memories
// that share an entity with it, inferring each link's relation from the ordered
// kind pair. Best-effort: a failure here must not abort the write it was
// triggered by.
func (s *Store) rebuildGraph(ctx context.Context, m *types.Memory) {
	entities := graph.ExtractEntities(m.Content, m.Project)
	if err := s.AddEntities(ctx, m.ID, entities); err != nil {
		return
	}

	neighbors, err := s.sharedEntityNeighbors(ctx, m.ID, 10)
	if err != nil {
		return
	}
	for _, otherID := range neighbors {
		other, err := s.Get(ctx, otherID)
		if err != nil {
			continue
		}
		_ = s.AddLink(ctx, types.MemoryLink{
			SourceID:     m.ID,
			TargetID:     other.ID,
			RelationType: graph.InferRelation(m.Kind, other.Kind),
		})
		_ = s.AddLink(ctx, types.MemoryLink{
			SourceID:     other.ID,
			TargetID:     m.ID,
			RelationType: graph.InferRelation(other.Kind, m.Kind),
		})
	}
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

package storage

import (
	"context"
	"time"

	"github.com/quietloop/pilot/pkg/types"
)

// Store is the full persistence surface the MCP tool layer drives. A single
// SQLite implementation backs it; the interface exists so that recall/gc/graph
// packages depend on a narrow contract instead of the concrete sqlite package.
type Store interface {
	// Add inserts a memory, merging into a near-duplicate of the same project
	// scope when one is found. Returns the stored (possibly merged) memory
	// and whether a merge occurred.
	Add(ctx context.Context, m *types.Memory) (*types.Memory, bool, error)

	// Get retrieves a memory by ID. Returns ErrNotFound if absent or expired.
	Get(ctx context.Context, id string) (*types.Memory, error)

	// Update applies a partial update to an existing memory.
	Update(ctx context.Context, id string, patch MemoryPatch) (*types.Memory, error)

	// Delete permanently removes a memory and its FTS row, links, and entities.
	Delete(ctx context.Context, id string) error

	// List returns memories matching opts, most recently updated first.
	List(ctx context.Context, opts ListOptions) ([]types.Memory, int64, error)

	// Search performs hybrid lexical+vector search with RRF fusion.
	Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error)

	// CleanupExpired deletes every memory whose expires_at has passed.
	// Called lazily before every search/list.
	CleanupExpired(ctx context.Context) (int, error)

	// BackfillEmbeddings recomputes the embedding for every memory whose
	// embedding is missing, returning the number of rows updated.
	BackfillEmbeddings(ctx context.Context) (int, error)

	// CountExpired reports how many memories would be deleted by
	// CleanupExpired, without deleting them. Used by GC's dry-run mode.
	CountExpired(ctx context.Context) (int, error)

	// PruneOrphans deletes any memory_entities/memory_links rows whose
	// memory_id no longer exists. Foreign-key cascades make this a no-op in
	// the common case; it exists as a defensive sweep for rows written by an
	// older schema version without cascading deletes enabled.
	PruneOrphans(ctx context.Context) (int, error)

	// Export renders up to 10,000 memories in project (or all, if empty) as JSON or Markdown.
	Export(ctx context.Context, project, format string) (string, error)

	// EnsureProject registers name if not already known.
	EnsureProject(ctx context.Context, name string) error

	// RegisterProject registers or updates a project's path/description.
	RegisterProject(ctx context.Context, p types.Project) (types.Project, error)

	// ListProjects returns every registered project with its memory count.
	ListProjects(ctx context.Context) ([]ProjectStats, error)

	// DetectProject finds the registered project whose path is the longest
	// prefix of workingDir, falling back to a kebab-cased directory basename.
	DetectProject(ctx context.Context, workingDir string) (string, error)

	// Stats summarizes the store's contents.
	Stats(ctx context.Context) (Stats, error)

	// GetConfig reads a single config value. ok is false if unset.
	GetConfig(ctx context.Context, key string) (value string, ok bool, err error)

	// SetConfig upserts a config value.
	SetConfig(ctx context.Context, key, value string) error

	// GlobalPrompt assembles the global prompt from its three sources.
	GlobalPrompt(ctx context.Context, project, workingDir string) (string, error)

	// ProjectContext aggregates a project's memories with global
	// preferences/patterns/snippets for the get_project_context tool.
	ProjectContext(ctx context.Context, project, workingDir string) (ProjectContext, error)

	// ImportBatch inserts memories from a legacy or bulk import, skipping
	// content that already exists verbatim. Returns the count actually inserted.
	ImportBatch(ctx context.Context, items []ImportItem) (int, error)

	// AddEntities attaches extracted entities to a memory, replacing any prior set.
	AddEntities(ctx context.Context, memoryID string, entities []types.MemoryEntity) error

	// ProjectEntities returns up to limit distinct entity values of kind
	// extracted from memories in project, most-referenced first.
	ProjectEntities(ctx context.Context, project string, kind types.EntityKind, limit int) ([]string, error)

	// AddLink upserts a directed relation between two memories.
	AddLink(ctx context.Context, link types.MemoryLink) error

	// RelatedMemories returns memories linked to id, directly or via a shared entity.
	RelatedMemories(ctx context.Context, id string, maxHops int) ([]types.Memory, error)

	// Close releases the underlying connection.
	Close() error
}

// MemoryPatch carries the optional fields of an update_memory call; nil
// fields are left unchanged. ExpiresAt is only applied when SetExpiresAt is
// true, so "clear the expiry" and "leave it alone" are both expressible.
type MemoryPatch struct {
	Content      *string
	Kind         *types.Kind
	Tags         *[]string
	Importance   *int
	SetExpiresAt bool
	ExpiresAt    *time.Time // nil with SetExpiresAt true means "clear"
}

// ProjectStats is a registered project plus its memory count.
type ProjectStats struct {
	types.Project
	MemoryCount int64
}

// ProjectContext is the aggregate response for get_project_context.
type ProjectContext struct {
	Project            string
	ProjectMemoryCount int64
	ProjectMemories    []types.Memory
	GlobalPreferences  []types.Memory
	GlobalPatterns     []types.Memory
	GlobalSnippets     []types.Memory
}

// ImportItem is one legacy or bulk-import record.
type ImportItem struct {
	Content string
	Kind    types.Kind
	Project string
	Tags    []string
	Source  string
}

// Package storage defines the persistence contract for memories, projects,
// entities, and links, and provides the SQLite implementation under
// internal/storage/sqlite.
package storage

import (
	"errors"

	"github.com/quietloop/pilot/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidFormat indicates an unsupported export/import format was requested.
	ErrInvalidFormat = errors.New("invalid format")
)

// ListOptions filters and paginates List.
type ListOptions struct {
	Project    string // empty means no project filter
	GlobalOnly bool   // true restricts to the global scope (project IS NULL), regardless of Project
	Kind       types.Kind
	Limit      int
	Offset     int
}

// Normalize applies defaults to ListOptions.
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// SearchResult pairs a memory with its computed relevance score.
type SearchResult struct {
	Memory types.Memory
	Score  float64
}

// SearchOptions filters a hybrid search call.
type SearchOptions struct {
	Query           string
	Limit           int
	Project         string
	Kind            types.Kind
	Tags            []string
	WatcherKeywords []string
}

// Normalize applies defaults to SearchOptions.
func (o *SearchOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// Stats summarizes the store's current contents.
type Stats struct {
	TotalMemories int64            `json:"total_memories"`
	GlobalCount   int64            `json:"global_memories"`
	Projects      int64            `json:"projects"`
	ExpiredCount  int64            `json:"expired_pending"`
	ByKind        map[string]int64 `json:"by_kind"`
	ByProject     map[string]int64 `json:"by_project"`
	DBSize        string           `json:"db_size"`
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/pkg/types"
)

// EnsureProject registers name (with an empty path) if it isn't already known.
func (s *Store) EnsureProject(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO projects (name,path,created_at) VALUES (?,?,?)",
		name, "", time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("sqlite: ensure project: %w", err)
	}
	return nil
}

// RegisterProject inserts or updates a project's path/description.
func (s *Store) RegisterProject(ctx context.Context, p types.Project) (types.Project, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name,path,description,created_at) VALUES (?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET path=excluded.path,
			description=COALESCE(excluded.description, projects.description)`,
		p.Name, p.Path, nullable(p.Description), now.Format(time.RFC3339))
	if err != nil {
		return types.Project{}, fmt.Errorf("sqlite: register project: %w", err)
	}
	return s.getProject(ctx, p.Name)
}

func (s *Store) getProject(ctx context.Context, name string) (types.Project, error) {
	var p types.Project
	var desc sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx, "SELECT name,path,description,created_at FROM projects WHERE name=?", name).
		Scan(&p.Name, &p.Path, &desc, &createdAt)
	if err != nil {
		return p, fmt.Errorf("sqlite: get project: %w", err)
	}
	p.Description = desc.String
	p.CreatedAt = parseRFC3339(createdAt)
	return p, nil
}

// ListProjects returns every registered project with its memory count,
// ordered by count descending.
func (s *Store) ListProjects(ctx context.Context) ([]storage.ProjectStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.name, p.path, p.description, p.created_at, COUNT(m.id) AS cnt
		 FROM projects p LEFT JOIN memories m ON m.project = p.name
		 GROUP BY p.name ORDER BY cnt DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list projects: %w", err)
	}
	defer rows.Close()

	var out []storage.ProjectStats
	for rows.Next() {
		var ps storage.ProjectStats
		var desc sql.NullString
		var createdAt string
		if err := rows.Scan(&ps.Name, &ps.Path, &desc, &createdAt, &ps.MemoryCount); err != nil {
			return nil, fmt.Errorf("sqlite: list projects scan: %w", err)
		}
		ps.Description = desc.String
		ps.CreatedAt = parseRFC3339(createdAt)
		out = append(out, ps)
	}
	return out, rows.Err()
}

var kebabInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// DetectProject returns the registered project whose path is the longest
// prefix of workingDir, falling back to a kebab-cased basename of workingDir.
func (s *Store) DetectProject(ctx context.Context, workingDir string) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, path FROM projects WHERE path != '' ORDER BY length(path) DESC")
	if err != nil {
		return "", fmt.Errorf("sqlite: detect project: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, path string
		if err := rows.Scan(&name, &path); err != nil {
			continue
		}
		if strings.HasPrefix(workingDir, path) {
			return name, rows.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	base := strings.ToLower(filepath.Base(workingDir))
	base = kebabInvalid.ReplaceAllString(base, "-")
	return base, nil
}

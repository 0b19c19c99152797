package sqlite

import (
	"context"
	"time"
)

// SetCreatedAtForTest rewrites a memory's created_at directly, bypassing the
// normal write path. Add/Update always stamp "now", so GC-candidacy tests
// (which depend on age) need a way to simulate an old item without sleeping
// for real days.
func (s *Store) SetCreatedAtForTest(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.ExecContext(ctx, "UPDATE memories SET created_at = ? WHERE id = ?",
		when.UTC().Format(time.RFC3339), id)
	return err
}

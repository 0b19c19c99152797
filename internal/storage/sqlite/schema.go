package sqlite

import "database/sql"

// Schema is applied idempotently on every open via CREATE TABLE/INDEX IF NOT
// EXISTS. The memories_fts definition is taken verbatim from the column
// weights and tokenizer the BM25 ranker in search.go expects.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'fact',
	project TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	source TEXT NOT NULL DEFAULT 'cursor',
	importance INTEGER NOT NULL DEFAULT 3,
	expires_at TEXT,
	metadata TEXT,
	embedding BLOB,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	last_accessed_at TEXT,
	access_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_expires ON memories(expires_at) WHERE expires_at IS NOT NULL;

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content, tags, kind, project,
	content_rowid='rowid',
	tokenize='unicode61 remove_diacritics 2'
);

CREATE TABLE IF NOT EXISTS projects (
	name TEXT PRIMARY KEY,
	path TEXT NOT NULL DEFAULT '',
	description TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS config (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memory_entities (
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	entity_kind TEXT NOT NULL,
	entity_value TEXT NOT NULL,
	PRIMARY KEY (memory_id, entity_kind, entity_value)
);
CREATE INDEX IF NOT EXISTS idx_entities_value ON memory_entities(entity_kind, entity_value);

CREATE TABLE IF NOT EXISTS memory_links (
	source_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	PRIMARY KEY (source_id, target_id)
);
CREATE INDEX IF NOT EXISTS idx_links_target ON memory_links(target_id);
`

// columnExists probes for a column via SELECT ... LIMIT 0, the way the
// original db.rs checks for the importance column before an ALTER TABLE.
// Schema is additive and idempotent, so this repo has never yet needed a
// real ALTER TABLE path, but new optional columns should be added this way.
func columnExists(db *sql.DB, table, column string) bool {
	_, err := db.Exec("SELECT " + column + " FROM " + table + " LIMIT 0")
	return err == nil
}

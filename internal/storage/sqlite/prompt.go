package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// promptCacheEntry is (modified_time, content) for one path in the
// global-prompt cache.
type promptCacheEntry struct {
	modTime time.Time
	content string
}

var (
	promptCacheMu sync.Mutex
	promptCache   = map[string]promptCacheEntry{}
)

// readCachedFile reads path through the process-wide cache, invalidated by
// the file's modification time. Returns ("", false) if the file is absent or
// unreadable.
func readCachedFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return "", false
	}

	promptCacheMu.Lock()
	entry, ok := promptCache[path]
	promptCacheMu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.content, true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	content := string(data)

	promptCacheMu.Lock()
	promptCache[path] = promptCacheEntry{modTime: info.ModTime(), content: content}
	promptCacheMu.Unlock()
	return content, true
}

// GlobalPrompt assembles the global prompt from up to three sources, in
// order: the configured global_prompt_path, <home>/.MemoryPilot/GLOBAL_PROMPT.md,
// and the active project's (or workingDir's) GLOBAL_PROMPT.md. Exact
// duplicates are dropped; the rest are joined by "\n\n---\n\n".
func (s *Store) GlobalPrompt(ctx context.Context, project, workingDir string) (string, error) {
	var pieces []string
	seen := make(map[string]bool)
	add := func(content string) {
		if content == "" || seen[content] {
			return
		}
		seen[content] = true
		pieces = append(pieces, content)
	}

	if configured, ok, err := s.GetConfig(ctx, "global_prompt_path"); err == nil && ok {
		if content, ok := readCachedFile(configured); ok {
			add(content)
		}
	}

	if s.path != "" {
		homePrompt := homePromptPath(s.path)
		if content, ok := readCachedFile(homePrompt); ok {
			add(content)
		}
	}

	projDir := workingDir
	if projDir == "" && project != "" {
		if p, err := s.getProject(ctx, project); err == nil {
			projDir = p.Path
		}
	}
	if projDir != "" {
		if content, ok := readCachedFile(filepath.Join(projDir, "GLOBAL_PROMPT.md")); ok {
			add(content)
		}
	}

	return strings.Join(pieces, "\n\n---\n\n"), nil
}

// homePromptPath derives <home>/.MemoryPilot/GLOBAL_PROMPT.md from the open
// database file's own directory, so the store doesn't need a second
// home-directory lookup.
func homePromptPath(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "GLOBAL_PROMPT.md")
}

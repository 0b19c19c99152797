// Package config resolves the on-disk layout the store and CLI use: the
// `.MemoryPilot` home directory, the SQLite database inside it, and the
// optional global prompt file. Kept deliberately small — there is no
// LLM-provider, backup, or multi-tenant configuration surface to manage
// (see DESIGN.md).
package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoHomeDir is returned when the process has no resolvable home
// directory.
var ErrNoHomeDir = errors.New("config: no home directory")

const (
	dirName        = ".MemoryPilot"
	dbFileName     = "memory.db"
	promptFileName = "GLOBAL_PROMPT.md"
)

// Paths is the resolved on-disk layout for one invocation.
type Paths struct {
	Home       string // <home>/.MemoryPilot
	DBPath     string // <home>/.MemoryPilot/memory.db
	PromptPath string // <home>/.MemoryPilot/GLOBAL_PROMPT.md
}

// Resolve locates the persisted-state directory under the user's home
// directory (overridable via PILOT_HOME for tests and CI), creating it if
// necessary.
func Resolve() (Paths, error) {
	home := os.Getenv("PILOT_HOME")
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil || h == "" {
			return Paths{}, ErrNoHomeDir
		}
		home = filepath.Join(h, dirName)
	}
	if err := os.MkdirAll(home, 0o700); err != nil {
		return Paths{}, err
	}
	return Paths{
		Home:       home,
		DBPath:     filepath.Join(home, dbFileName),
		PromptPath: filepath.Join(home, promptFileName),
	}, nil
}

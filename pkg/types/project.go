package types

import "time"

// Project is a registered scope that memories can belong to. Registration
// is optional: a project name can appear on a Memory without ever being
// registered here, but registering one lets the store auto-detect the
// active project from a working directory via longest-path-prefix match.
type Project struct {
	Name        string    `json:"name"`
	Path        string    `json:"path,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

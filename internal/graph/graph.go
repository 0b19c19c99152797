// Package graph builds the lightweight knowledge graph that links memories:
// entity extraction from free text, and relation-type inference from a pair
// of memory kinds.
package graph

import (
	"strings"

	"github.com/quietloop/pilot/pkg/types"
)

// techPatterns is the closed list of technology keywords the extractor
// matches as a case-insensitive substring of the content.
var techPatterns = []string{
	"svelte", "sveltekit", "svelte 5", "react", "vue", "next", "nuxt", "astro",
	"supabase", "firebase", "postgresql", "sqlite", "redis", "mongodb",
	"tailwind", "css", "sass", "bootstrap",
	"rust", "typescript", "javascript", "python", "swift", "go", "java",
	"cloudflare", "vercel", "netlify", "aws", "hetzner", "docker",
	"stripe", "auth", "jwt", "oauth", "better-auth",
	"onnx", "bert", "openai", "claude", "llm", "mcp",
	"tauri", "electron", "flutter", "xcode",
	"git", "github", "npm", "cargo", "pnpm",
}

// componentHints are words whose presence triggers a scan for nearby
// PascalCase/kebab-case/snake_case tokens that look like component names.
var componentHints = []string{
	"component", "page", "layout", "modal", "button", "form", "input",
	"header", "footer", "sidebar", "nav", "card", "table", "dialog",
	"dashboard", "settings", "profile", "auth", "login", "signup",
}

var fileExtensions = []string{".svelte", ".ts", ".tsx", ".rs", ".py", ".js"}

// ExtractEntities extracts project/tech/file/component entities from content,
// deduplicated by (kind, lowercased value) within this call.
func ExtractEntities(content, project string) []types.MemoryEntity {
	lower := strings.ToLower(content)
	seen := make(map[string]bool)
	var out []types.MemoryEntity

	add := func(kind types.EntityKind, value string) {
		key := string(kind) + ":" + strings.ToLower(value)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, types.MemoryEntity{EntityKind: kind, EntityValue: value})
	}

	if project != "" {
		add(types.EntityKindProject, project)
	}

	for _, tech := range techPatterns {
		if strings.Contains(lower, tech) {
			add(types.EntityKindTech, tech)
		}
	}

	for _, word := range strings.Fields(content) {
		w := trimPunct(word)
		lw := strings.ToLower(w)
		if strings.Contains(w, "/") && strings.Contains(w, ".") && len(w) > 4 {
			add(types.EntityKindFile, lw)
			continue
		}
		if len(w) > 4 && !strings.HasPrefix(w, ".") && hasKnownExtension(lw) {
			add(types.EntityKindFile, lw)
		}
	}

	for _, hint := range componentHints {
		if !strings.Contains(lower, hint) {
			continue
		}
		for _, word := range strings.Fields(content) {
			w := trimComponentPunct(word)
			if len(w) <= 2 {
				continue
			}
			looksLikeComponent := isUpperFirst(w) || strings.ContainsAny(w, "-_")
			if !looksLikeComponent {
				continue
			}
			if nearHint(lower, hint, strings.ToLower(w), 50) {
				add(types.EntityKindComponent, w)
			}
		}
	}

	return out
}

func hasKnownExtension(lowerWord string) bool {
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lowerWord, ext) {
			return true
		}
	}
	return false
}

func isUpperFirst(s string) bool {
	if s == "" {
		return false
	}
	r := rune(s[0])
	return r >= 'A' && r <= 'Z'
}

func trimPunct(s string) string {
	isKeep := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '/' || r == '.' || r == '_' || r == '-'
	}
	return strings.TrimFunc(s, func(r rune) bool { return !isKeep(r) })
}

func trimComponentPunct(s string) string {
	isKeep := func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '-' || r == '_'
	}
	return strings.TrimFunc(s, func(r rune) bool { return !isKeep(r) })
}

// nearHint reports whether a and b (both assumed lowercase, b is the
// lowercased candidate word, a the hint) appear within distance characters
// of each other in text.
func nearHint(text, a, b string, distance int) bool {
	posA := strings.Index(text, a)
	posB := strings.Index(text, b)
	if posA < 0 || posB < 0 {
		return false
	}
	diff := posA - posB
	if diff < 0 {
		diff = -diff
	}
	return diff <= distance
}

// InferRelation derives the directed relation type from an ordered pair of
// memory kinds.
func InferRelation(sourceKind, targetKind types.Kind) types.RelationType {
	switch {
	case sourceKind == types.KindBug && (targetKind == types.KindDecision || targetKind == "architecture"):
		return types.RelationResolvedBy
	case sourceKind == types.KindDecision && targetKind == types.KindBug:
		return types.RelationResolves
	case sourceKind == types.KindBug && targetKind == types.KindSnippet:
		return types.RelationFixedBy
	case sourceKind == types.KindSnippet && targetKind == types.KindBug:
		return types.RelationFixes
	case sourceKind == types.KindDecision && (targetKind == "architecture" || targetKind == types.KindPattern):
		return types.RelationImplements
	case sourceKind == "architecture" && targetKind == types.KindDecision:
		return types.RelationDecidedBy
	case sourceKind == types.KindTodo:
		return types.RelationDependsOn
	case targetKind == types.KindTodo:
		return types.RelationBlocks
	default:
		return types.RelationRelatesTo
	}
}

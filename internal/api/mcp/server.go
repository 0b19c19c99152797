package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/quietloop/pilot/internal/gc"
	"github.com/quietloop/pilot/internal/migrate"
	"github.com/quietloop/pilot/internal/recall"
	"github.com/quietloop/pilot/internal/storage"
	"github.com/quietloop/pilot/internal/watcher"
	"github.com/quietloop/pilot/pkg/types"
)

// Server implements the Model Context Protocol for the memory store: a
// JSON-RPC 2.0 tool surface for storing, retrieving, searching, and
// maintaining memories, dispatched via HandleRequest over a tools/list +
// tools/call envelope.
type Server struct {
	store     storage.Store
	watcher   *watcher.Watcher
	sessionID string
}

// NewServer constructs a Server over store. w may be nil when no file
// watcher is running (GetBoostKeywords/Recent on a nil Watcher return empty).
func NewServer(store storage.Store, w *watcher.Watcher) *Server {
	s := &Server{
		store:     store,
		watcher:   w,
		sessionID: uuid.New().String(),
	}
	log.Printf("pilot-mcp: session ID: %s", s.sessionID)
	return s
}

// HandleRequest processes one JSON-RPC 2.0 request and returns the encoded
// response.
func (s *Server) HandleRequest(ctx context.Context, requestJSON []byte) ([]byte, error) {
	var req JSONRPCRequest
	if err := json.Unmarshal(requestJSON, &req); err != nil {
		return s.errorResponse(nil, ErrCodeParseError, "Parse error", err)
	}
	if req.JSONRPC != "2.0" {
		return s.errorResponse(req.ID, ErrCodeInvalidRequest, "Invalid JSON-RPC version", nil)
	}

	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleInitialize(ctx, req.Params)
	case "notifications/initialized":
		result = map[string]interface{}{}
	case "tools/list":
		result, err = s.handleToolsList(ctx, req.Params)
	case "tools/call":
		result, err = s.handleToolsCall(ctx, req.Params)
	case "ping":
		result = map[string]interface{}{}
	default:
		return s.errorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	if err != nil {
		return s.errorResponse(req.ID, ErrCodeServerError, err.Error(), nil)
	}
	return s.successResponse(req.ID, result)
}

func (s *Server) handleInitialize(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPInitializeResult{
		ProtocolVersion: "2024-11-05",
		Capabilities:    MCPServerCapabilities{Tools: MCPToolsCapability{ListChanged: false}},
		ServerInfo:      MCPServerInfo{Name: "pilot", Version: "1.0.0"},
	}, nil
}

func (s *Server) handleToolsList(ctx context.Context, params interface{}) (interface{}, error) {
	return MCPToolsListResult{Tools: s.buildToolsList()}, nil
}

// emptySchema is the input schema for tools that take no arguments.
var emptySchema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}

// buildToolsList returns the static tool descriptions for tools/list, one
// per exposed tool. Input schemas are kept loose
// (object with no required fields beyond what's documented) since argument
// validation happens in callTool, not at the schema layer.
func (s *Server) buildToolsList() []MCPTool {
	obj := func(props map[string]interface{}, required ...string) map[string]interface{} {
		schema := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}
	str := map[string]interface{}{"type": "string"}
	strArr := map[string]interface{}{"type": "array", "items": str}
	num := map[string]interface{}{"type": "number"}
	boolean := map[string]interface{}{"type": "boolean"}
	obj2 := map[string]interface{}{"type": "object"}

	return []MCPTool{
		{Name: "recall", Description: "Assemble the top-level recall payload: project memories, global preferences/patterns/decisions, high-importance items, an optional hint-driven search, and the global prompt.",
			InputSchema: obj(map[string]interface{}{"project": str, "working_dir": str, "hint": str})},
		{Name: "add_memory", Description: "Store a new memory, merging into a near-duplicate of the same project scope if one is found.",
			InputSchema: obj(map[string]interface{}{
				"content": str, "kind": str, "project": str, "tags": strArr,
				"source": str, "importance": num, "expires_at": str, "metadata": obj2,
			}, "content")},
		{Name: "add_memories", Description: "Store a batch of memories in one call.",
			InputSchema: obj(map[string]interface{}{"items": map[string]interface{}{"type": "array"}}, "items")},
		{Name: "search_memory", Description: "Hybrid lexical+vector search with RRF fusion and importance/graph/watcher/tag adjustments.",
			InputSchema: obj(map[string]interface{}{
				"query": str, "project": str, "kind": str, "tags": strArr,
				"limit": num, "watcher_keywords": strArr,
			}, "query")},
		{Name: "get_memory", Description: "Fetch a single memory by id.",
			InputSchema: obj(map[string]interface{}{"id": str}, "id")},
		{Name: "update_memory", Description: "Apply a partial update to an existing memory.",
			InputSchema: obj(map[string]interface{}{
				"id": str, "content": str, "kind": str, "tags": strArr,
				"importance": num, "expires_at": str,
			}, "id")},
		{Name: "delete_memory", Description: "Permanently delete a memory and its links/entities.",
			InputSchema: obj(map[string]interface{}{"id": str}, "id")},
		{Name: "list_memories", Description: "List memories by project/kind, most recently updated first.",
			InputSchema: obj(map[string]interface{}{"project": str, "kind": str, "limit": num, "offset": num})},
		{Name: "get_project_context", Description: "Aggregate a project's memories with global preferences/patterns/snippets.",
			InputSchema: obj(map[string]interface{}{"project": str, "working_dir": str})},
		{Name: "get_project_brain", Description: "Return a token-bounded JSON digest of a project's most load-bearing context.",
			InputSchema: obj(map[string]interface{}{"project": str}, "project")},
		{Name: "register_project", Description: "Register or update a project's path/description.",
			InputSchema: obj(map[string]interface{}{"name": str, "path": str, "description": str}, "name")},
		{Name: "list_projects", Description: "List every registered project with its memory count.",
			InputSchema: emptySchema},
		{Name: "get_stats", Description: "Summarize the store's contents.",
			InputSchema: emptySchema},
		{Name: "get_global_prompt", Description: "Assemble the global prompt from its configured sources.",
			InputSchema: obj(map[string]interface{}{"project": str, "working_dir": str})},
		{Name: "export_memories", Description: "Export memories as JSON or Markdown.",
			InputSchema: obj(map[string]interface{}{"project": str, "format": str}, "format")},
		{Name: "set_config", Description: "Upsert a config key/value.",
			InputSchema: obj(map[string]interface{}{"key": str, "value": str}, "key", "value")},
		{Name: "run_gc", Description: "Run one garbage-collection cycle: merge aged low-value items, delete expired items, prune orphan links.",
			InputSchema: obj(map[string]interface{}{"dry_run": boolean})},
		{Name: "cleanup_expired", Description: "Delete every memory whose expires_at has passed.",
			InputSchema: emptySchema},
		{Name: "migrate_v1", Description: "Ingest a legacy v1 JSON memory store.",
			InputSchema: obj(map[string]interface{}{"legacy_home": str})},
		{Name: "get_file_context", Description: "Report the watcher's recent-change backlog and memories mentioning a path.",
			InputSchema: obj(map[string]interface{}{"project": str, "path": str, "limit": num})},
	}
}

// handleToolsCall dispatches a tools/call request and wraps the result in
// the MCP content envelope; tool-level errors are reported as isError
// results rather than JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, params interface{}) (interface{}, error) {
	var p MCPToolCallParams
	if err := s.unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	argsJSON, err := json.Marshal(p.Arguments)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}

	result, callErr := s.callTool(ctx, p.Name, argsJSON)
	if callErr != nil {
		return &MCPToolCallResult{
			Content: []MCPToolCallContent{{Type: "text", Text: callErr.Error()}},
			IsError: true,
		}, nil
	}

	text, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &MCPToolCallResult{Content: []MCPToolCallContent{{Type: "text", Text: string(text)}}}, nil
}

// callTool is the single tool dispatch table, shared by tools/call.
func (s *Server) callTool(ctx context.Context, name string, argsJSON []byte) (interface{}, error) {
	switch name {
	case "recall":
		var a RecallArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return recall.Recall(ctx, s.store, a.Project, a.WorkingDir, a.Hint)

	case "add_memory":
		var a AddMemoryArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.addMemory(ctx, a)

	case "add_memories":
		var a AddMemoriesArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.addMemories(ctx, a)

	case "search_memory":
		var a SearchMemoryArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.searchMemory(ctx, a)

	case "get_memory":
		var a GetMemoryArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.getMemory(ctx, a)

	case "update_memory":
		var a UpdateMemoryArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.updateMemory(ctx, a)

	case "delete_memory":
		var a DeleteMemoryArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.deleteMemory(ctx, a)

	case "list_memories":
		var a ListMemoriesArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.listMemories(ctx, a)

	case "get_project_context":
		var a GetProjectContextArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.store.ProjectContext(ctx, a.Project, a.WorkingDir)

	case "get_project_brain":
		var a GetProjectBrainArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return recall.ProjectBrain(ctx, s.store, a.Project)

	case "register_project":
		var a RegisterProjectArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.registerProject(ctx, a)

	case "list_projects":
		return s.listProjects(ctx)

	case "get_stats":
		return s.store.Stats(ctx)

	case "get_global_prompt":
		var a GetGlobalPromptArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		prompt, err := s.store.GlobalPrompt(ctx, a.Project, a.WorkingDir)
		if err != nil {
			return nil, err
		}
		return GetGlobalPromptResult{Prompt: prompt}, nil

	case "export_memories":
		var a ExportMemoriesArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		data, err := s.store.Export(ctx, a.Project, a.Format)
		if err != nil {
			return nil, err
		}
		return ExportMemoriesResult{Data: data}, nil

	case "set_config":
		var a SetConfigArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		if err := s.store.SetConfig(ctx, a.Key, a.Value); err != nil {
			return nil, err
		}
		return SetConfigResult{Key: a.Key, Value: a.Value}, nil

	case "run_gc":
		var a RunGCArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return gc.Run(ctx, s.store, gc.DefaultConfig(), a.DryRun)

	case "cleanup_expired":
		n, err := s.store.CleanupExpired(ctx)
		if err != nil {
			return nil, err
		}
		return CleanupExpiredResult{Removed: n}, nil

	case "migrate_v1":
		var a MigrateV1Args
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		home := a.LegacyHome
		if home == "" {
			if h, err := os.UserHomeDir(); err == nil {
				home = h + "/.MemoryPilot"
			}
		}
		n, err := migrate.Run(ctx, s.store, home)
		if err != nil {
			return nil, err
		}
		return map[string]int{"imported": n}, nil

	case "get_file_context":
		var a GetFileContextArgs
		if err := json.Unmarshal(argsJSON, &a); err != nil {
			return nil, err
		}
		return s.getFileContext(ctx, a)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func (s *Server) addMemory(ctx context.Context, a AddMemoryArgs) (AddMemoryResult, error) {
	kind := types.Kind(a.Kind)
	if kind == "" {
		kind = types.KindFact
	}
	m := &types.Memory{
		Content:    a.Content,
		Kind:       kind,
		Project:    a.Project,
		Tags:       a.Tags,
		Source:     a.Source,
		Importance: a.Importance,
		Metadata:   a.Metadata,
	}
	if a.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, a.ExpiresAt); err == nil {
			m.ExpiresAt = &t
		}
	}
	stored, merged, err := s.store.Add(ctx, m)
	if err != nil {
		return AddMemoryResult{}, err
	}
	msg := "stored"
	if merged {
		msg = "merged into an existing near-duplicate memory"
	}
	return AddMemoryResult{Memory: *stored, Merged: merged, Message: msg}, nil
}

func (s *Server) addMemories(ctx context.Context, a AddMemoriesArgs) (AddMemoriesResult, error) {
	var out AddMemoriesResult
	for _, item := range a.Items {
		r, err := s.addMemory(ctx, item)
		if err != nil {
			continue
		}
		out.Results = append(out.Results, r)
		out.Added++
		if r.Merged {
			out.Merged++
		}
	}
	return out, nil
}

func (s *Server) searchMemory(ctx context.Context, a SearchMemoryArgs) (SearchMemoryResult, error) {
	watcherKeywords := a.WatcherKeywords
	if len(watcherKeywords) == 0 {
		watcherKeywords = s.watcher.GetBoostKeywords()
	}
	hits, err := s.store.Search(ctx, storage.SearchOptions{
		Query:           a.Query,
		Project:         a.Project,
		Kind:            types.Kind(a.Kind),
		Tags:            a.Tags,
		Limit:           a.Limit,
		WatcherKeywords: watcherKeywords,
	})
	if err != nil {
		return SearchMemoryResult{}, err
	}
	out := SearchMemoryResult{Total: len(hits)}
	for _, h := range hits {
		out.Results = append(out.Results, ScoredMemory{Memory: h.Memory, Score: h.Score})
	}
	return out, nil
}

func (s *Server) getMemory(ctx context.Context, a GetMemoryArgs) (GetMemoryResult, error) {
	m, err := s.store.Get(ctx, a.ID)
	if err != nil {
		if err == storage.ErrNotFound {
			return GetMemoryResult{Found: false}, nil
		}
		return GetMemoryResult{}, err
	}
	return GetMemoryResult{Memory: m, Found: true}, nil
}

func (s *Server) updateMemory(ctx context.Context, a UpdateMemoryArgs) (UpdateMemoryResult, error) {
	patch := storage.MemoryPatch{Content: a.Content, Tags: a.Tags, Importance: a.Importance}
	if a.Kind != nil {
		k := types.Kind(*a.Kind)
		patch.Kind = &k
	}
	if a.ExpiresAt != nil {
		patch.SetExpiresAt = true
		if *a.ExpiresAt != "" {
			if t, err := time.Parse(time.RFC3339, *a.ExpiresAt); err == nil {
				patch.ExpiresAt = &t
			}
		}
	}
	m, err := s.store.Update(ctx, a.ID, patch)
	if err != nil {
		return UpdateMemoryResult{}, err
	}
	return UpdateMemoryResult{Memory: *m}, nil
}

func (s *Server) deleteMemory(ctx context.Context, a DeleteMemoryArgs) (DeleteMemoryResult, error) {
	if err := s.store.Delete(ctx, a.ID); err != nil {
		return DeleteMemoryResult{}, err
	}
	return DeleteMemoryResult{ID: a.ID, Deleted: true}, nil
}

func (s *Server) listMemories(ctx context.Context, a ListMemoriesArgs) (ListMemoriesResult, error) {
	items, total, err := s.store.List(ctx, storage.ListOptions{
		Project: a.Project,
		Kind:    types.Kind(a.Kind),
		Limit:   a.Limit,
		Offset:  a.Offset,
	})
	if err != nil {
		return ListMemoriesResult{}, err
	}
	return ListMemoriesResult{Items: items, Total: total}, nil
}

func (s *Server) registerProject(ctx context.Context, a RegisterProjectArgs) (RegisterProjectResult, error) {
	p, err := s.store.RegisterProject(ctx, types.Project{Name: a.Name, Path: a.Path, Description: a.Description})
	if err != nil {
		return RegisterProjectResult{}, err
	}
	return RegisterProjectResult{Project: p}, nil
}

func (s *Server) listProjects(ctx context.Context) (ListProjectsResult, error) {
	stats, err := s.store.ListProjects(ctx)
	if err != nil {
		return ListProjectsResult{}, err
	}
	out := ListProjectsResult{}
	for _, p := range stats {
		out.Projects = append(out.Projects, ProjectSummary{
			Name: p.Name, Path: p.Path, Description: p.Description, MemoryCount: p.MemoryCount,
		})
	}
	return out, nil
}

// getFileContext reports the watcher's recent-change backlog and any
// memories that mention path, surfacing "what was touched, what do we know
// about it" for an editor-integration caller.
func (s *Server) getFileContext(ctx context.Context, a GetFileContextArgs) (GetFileContextResult, error) {
	var out GetFileContextResult
	for _, c := range s.watcher.Recent() {
		out.RecentChanges = append(out.RecentChanges, c.Path)
	}

	if a.Path == "" {
		return out, nil
	}
	limit := a.Limit
	if limit <= 0 {
		limit = 10
	}
	hits, err := s.store.Search(ctx, storage.SearchOptions{Query: a.Path, Project: a.Project, Limit: limit})
	if err != nil {
		return out, err
	}
	for _, h := range hits {
		out.Matches = append(out.Matches, h.Memory)
	}
	return out, nil
}

// unmarshalParams unmarshals JSON-RPC parameters into a typed struct.
func (s *Server) unmarshalParams(params interface{}, dest interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	return json.Unmarshal(data, dest)
}

func (s *Server) successResponse(id interface{}, result interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) ([]byte, error) {
	return json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   &JSONRPCError{Code: code, Message: message, Data: data},
		ID:      id,
	})
}

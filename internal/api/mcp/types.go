// Package mcp implements the Model Context Protocol JSON-RPC 2.0 surface
// over the memory store: initialize, tools/list, tools/call, and ping. Tools
// are reachable only through tools/call.
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/quietloop/pilot/pkg/types"
)

// AddMemoryArgs contains arguments for the add_memory tool.
type AddMemoryArgs struct {
	Content    string                 `json:"content"`
	Kind       string                 `json:"kind,omitempty"`
	Project    string                 `json:"project,omitempty"`
	Tags       []string               `json:"tags,omitempty"`
	Source     string                 `json:"source,omitempty"`
	Importance int                    `json:"importance,omitempty"`
	ExpiresAt  string                 `json:"expires_at,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts tags sent either as a JSON array or as a
// JSON-encoded/comma-separated string, tolerating clients that stringify
// array fields.
func (a *AddMemoryArgs) UnmarshalJSON(data []byte) error {
	type Alias AddMemoryArgs
	aux := &struct {
		Tags json.RawMessage `json:"tags,omitempty"`
		*Alias
	}{Alias: (*Alias)(a)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Tags == nil {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(aux.Tags, &tags); err == nil {
		a.Tags = tags
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.Tags, &s); err != nil {
		return nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err == nil {
		a.Tags = tags
		return nil
	}
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	a.Tags = tags
	return nil
}

// AddMemoryResult reports the outcome of add_memory.
type AddMemoryResult struct {
	Memory   types.Memory `json:"memory"`
	Merged   bool         `json:"merged"`
	Message  string       `json:"message"`
}

// AddMemoriesArgs batches AddMemoryArgs for the add_memories tool.
type AddMemoriesArgs struct {
	Items []AddMemoryArgs `json:"items"`
}

// AddMemoriesResult reports one AddMemoryResult per item that was stored or
// merged, in submission order; items whose add fails are skipped and do not
// appear in Results or the counts.
type AddMemoriesResult struct {
	Results []AddMemoryResult `json:"results"`
	Added   int               `json:"added"`
	Merged  int               `json:"merged"`
}

// SearchMemoryArgs contains arguments for the search_memory tool.
type SearchMemoryArgs struct {
	Query           string   `json:"query"`
	Project         string   `json:"project,omitempty"`
	Kind            string   `json:"kind,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Limit           int      `json:"limit,omitempty"`
	WatcherKeywords []string `json:"watcher_keywords,omitempty"`
}

// SearchMemoryResult is returned by search_memory.
type SearchMemoryResult struct {
	Results []ScoredMemory `json:"results"`
	Total   int            `json:"total"`
}

// ScoredMemory pairs a memory with its fused relevance score.
type ScoredMemory struct {
	Memory types.Memory `json:"memory"`
	Score  float64      `json:"score"`
}

// GetMemoryArgs contains arguments for the get_memory tool.
type GetMemoryArgs struct {
	ID string `json:"id"`
}

// GetMemoryResult is returned by get_memory.
type GetMemoryResult struct {
	Memory *types.Memory `json:"memory,omitempty"`
	Found  bool          `json:"found"`
}

// UpdateMemoryArgs contains arguments for the update_memory tool. Fields left
// nil are not modified; ExpiresAt is only applied when its pointer is
// non-nil, so an empty string clears the expiry while omission preserves it.
type UpdateMemoryArgs struct {
	ID         string    `json:"id"`
	Content    *string   `json:"content,omitempty"`
	Kind       *string   `json:"kind,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Importance *int      `json:"importance,omitempty"`
	ExpiresAt  *string   `json:"expires_at,omitempty"`
}

// UpdateMemoryResult is returned by update_memory.
type UpdateMemoryResult struct {
	Memory types.Memory `json:"memory"`
}

// DeleteMemoryArgs contains arguments for the delete_memory tool.
type DeleteMemoryArgs struct {
	ID string `json:"id"`
}

// DeleteMemoryResult is returned by delete_memory.
type DeleteMemoryResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// ListMemoriesArgs contains arguments for the list_memories tool.
type ListMemoriesArgs struct {
	Project string `json:"project,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// ListMemoriesResult is returned by list_memories.
type ListMemoriesResult struct {
	Items []types.Memory `json:"items"`
	Total int64          `json:"total"`
}

// GetProjectContextArgs contains arguments for the get_project_context tool.
type GetProjectContextArgs struct {
	Project    string `json:"project,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
}

// GetProjectBrainArgs contains arguments for the get_project_brain tool.
type GetProjectBrainArgs struct {
	Project string `json:"project"`
}

// RegisterProjectArgs contains arguments for the register_project tool.
type RegisterProjectArgs struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
}

// RegisterProjectResult is returned by register_project.
type RegisterProjectResult struct {
	Project types.Project `json:"project"`
}

// ListProjectsResult is returned by list_projects.
type ListProjectsResult struct {
	Projects []ProjectSummary `json:"projects"`
}

// ProjectSummary is a registered project plus its memory count.
type ProjectSummary struct {
	Name        string `json:"name"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
	MemoryCount int64  `json:"memory_count"`
}

// GetGlobalPromptArgs contains arguments for the get_global_prompt tool.
type GetGlobalPromptArgs struct {
	Project    string `json:"project,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
}

// GetGlobalPromptResult is returned by get_global_prompt.
type GetGlobalPromptResult struct {
	Prompt string `json:"prompt"`
}

// ExportMemoriesArgs contains arguments for the export_memories tool.
type ExportMemoriesArgs struct {
	Project string `json:"project,omitempty"`
	Format  string `json:"format"`
}

// ExportMemoriesResult is returned by export_memories.
type ExportMemoriesResult struct {
	Data string `json:"data"`
}

// SetConfigArgs contains arguments for the set_config tool.
type SetConfigArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SetConfigResult is returned by set_config.
type SetConfigResult struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RunGCArgs contains arguments for the run_gc tool.
type RunGCArgs struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// CleanupExpiredResult is returned by cleanup_expired.
type CleanupExpiredResult struct {
	Removed int `json:"removed"`
}

// MigrateV1Args contains arguments for the migrate_v1 tool.
type MigrateV1Args struct {
	LegacyHome string `json:"legacy_home,omitempty"`
}

// GetFileContextArgs contains arguments for the get_file_context tool.
type GetFileContextArgs struct {
	Project string `json:"project,omitempty"`
	Path    string `json:"path,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// GetFileContextResult is returned by get_file_context.
type GetFileContextResult struct {
	RecentChanges []string       `json:"recent_changes"`
	Matches       []types.Memory `json:"matches"`
}

// RecallArgs contains arguments for the recall tool.
type RecallArgs struct {
	Project    string `json:"project,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Hint       string `json:"hint,omitempty"`
}

// ---------------------------------------------------------------------------
// JSON-RPC 2.0 envelope
// ---------------------------------------------------------------------------

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error.
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
	ErrCodeServerError    = -32000
)

// MCPInitializeParams holds the parameters sent by a client in the
// initialize request.
type MCPInitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      MCPClientInfo          `json:"clientInfo"`
}

// MCPClientInfo identifies the connecting MCP client.
type MCPClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerInfo identifies this MCP server.
type MCPServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MCPServerCapabilities describes what this server supports.
type MCPServerCapabilities struct {
	Tools MCPToolsCapability `json:"tools"`
}

// MCPToolsCapability signals that the tool list is static.
type MCPToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// MCPInitializeResult is the response to the initialize request.
type MCPInitializeResult struct {
	ProtocolVersion string                `json:"protocolVersion"`
	Capabilities    MCPServerCapabilities `json:"capabilities"`
	ServerInfo      MCPServerInfo         `json:"serverInfo"`
}

// MCPTool describes a single tool exposed via tools/list.
type MCPTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// MCPToolsListResult is the response to tools/list.
type MCPToolsListResult struct {
	Tools []MCPTool `json:"tools"`
}

// MCPToolCallParams holds the parameters sent in a tools/call request.
type MCPToolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// MCPToolCallContent is a single content block in a tool call response.
type MCPToolCallContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MCPToolCallResult is the response to a tools/call request.
type MCPToolCallResult struct {
	Content []MCPToolCallContent `json:"content"`
	IsError bool                 `json:"isError,omitempty"`
}

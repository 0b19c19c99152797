package mcp_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quietloop/pilot/internal/api/mcp"
	"github.com/quietloop/pilot/internal/storage/sqlite"
)

func newTestServer(t *testing.T) *mcp.Server {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "mcp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return mcp.NewServer(store, nil)
}

func rpcRequest(t *testing.T, method string, params interface{}) []byte {
	t.Helper()
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return data
}

func decodeResponse(t *testing.T, raw []byte) mcp.JSONRPCResponse {
	t.Helper()
	var resp mcp.JSONRPCResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestHandleRequestRejectsBadJSONRPCVersion(t *testing.T) {
	server := newTestServer(t)
	req := mcp.JSONRPCRequest{JSONRPC: "1.0", Method: "ping", ID: 1}
	data, err := json.Marshal(req)
	require.NoError(t, err)

	raw, err := server.HandleRequest(context.Background(), data)
	require.NoError(t, err)
	resp := decodeResponse(t, raw)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrCodeInvalidRequest, resp.Error.Code)
}

func TestHandleRequestUnknownMethod(t *testing.T) {
	server := newTestServer(t)
	raw, err := server.HandleRequest(context.Background(), rpcRequest(t, "not/a/method", nil))
	require.NoError(t, err)
	resp := decodeResponse(t, raw)
	require.NotNil(t, resp.Error)
	assert.Equal(t, mcp.ErrCodeMethodNotFound, resp.Error.Code)
}

func TestHandleRequestInitialize(t *testing.T) {
	server := newTestServer(t)
	raw, err := server.HandleRequest(context.Background(), rpcRequest(t, "initialize", mcp.MCPInitializeParams{ProtocolVersion: "2024-11-05"}))
	require.NoError(t, err)
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	resultJSON, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result mcp.MCPInitializeResult
	require.NoError(t, json.Unmarshal(resultJSON, &result))
	assert.Equal(t, "pilot", result.ServerInfo.Name)
}

func TestHandleRequestToolsListIncludesEveryTool(t *testing.T) {
	server := newTestServer(t)
	raw, err := server.HandleRequest(context.Background(), rpcRequest(t, "tools/list", nil))
	require.NoError(t, err)
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	resultJSON, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result mcp.MCPToolsListResult
	require.NoError(t, json.Unmarshal(resultJSON, &result))

	names := make(map[string]bool, len(result.Tools))
	for _, tool := range result.Tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description)
		assert.NotNil(t, tool.InputSchema)
	}

	for _, want := range []string{
		"recall", "add_memory", "add_memories", "search_memory", "get_memory",
		"update_memory", "delete_memory", "list_memories", "get_project_context",
		"get_project_brain", "register_project", "list_projects", "get_stats",
		"get_global_prompt", "export_memories", "set_config", "run_gc",
		"cleanup_expired", "migrate_v1", "get_file_context",
	} {
		assert.True(t, names[want], "expected tool %q in tools/list", want)
	}
}

func callTool(t *testing.T, server *mcp.Server, name string, args map[string]interface{}) mcp.MCPToolCallResult {
	t.Helper()
	params := mcp.MCPToolCallParams{Name: name, Arguments: args}
	raw, err := server.HandleRequest(context.Background(), rpcRequest(t, "tools/call", params))
	require.NoError(t, err)
	resp := decodeResponse(t, raw)
	require.Nil(t, resp.Error)

	resultJSON, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result mcp.MCPToolCallResult
	require.NoError(t, json.Unmarshal(resultJSON, &result))
	return result
}

func TestToolsCallAddAndGetMemory(t *testing.T) {
	server := newTestServer(t)

	addResult := callTool(t, server, "add_memory", map[string]interface{}{
		"content": "prefers tabs over spaces", "kind": "preference",
	})
	require.False(t, addResult.IsError)

	var added mcp.AddMemoryResult
	require.NoError(t, json.Unmarshal([]byte(addResult.Content[0].Text), &added))
	assert.False(t, added.Merged)
	assert.Equal(t, 3, added.Memory.Importance)

	getResult := callTool(t, server, "get_memory", map[string]interface{}{"id": added.Memory.ID})
	require.False(t, getResult.IsError)
	var got mcp.GetMemoryResult
	require.NoError(t, json.Unmarshal([]byte(getResult.Content[0].Text), &got))
	assert.True(t, got.Found)
	assert.Equal(t, "prefers tabs over spaces", got.Memory.Content)
}

func TestToolsCallUnknownToolIsError(t *testing.T) {
	server := newTestServer(t)
	result := callTool(t, server, "not_a_real_tool", nil)
	assert.True(t, result.IsError)
}

func TestToolsCallDeleteMemory(t *testing.T) {
	server := newTestServer(t)

	addResult := callTool(t, server, "add_memory", map[string]interface{}{"content": "temporary note"})
	var added mcp.AddMemoryResult
	require.NoError(t, json.Unmarshal([]byte(addResult.Content[0].Text), &added))

	delResult := callTool(t, server, "delete_memory", map[string]interface{}{"id": added.Memory.ID})
	require.False(t, delResult.IsError)

	getResult := callTool(t, server, "get_memory", map[string]interface{}{"id": added.Memory.ID})
	var got mcp.GetMemoryResult
	require.NoError(t, json.Unmarshal([]byte(getResult.Content[0].Text), &got))
	assert.False(t, got.Found)
}

func TestToolsCallRegisterAndListProjects(t *testing.T) {
	server := newTestServer(t)

	regResult := callTool(t, server, "register_project", map[string]interface{}{"name": "acme", "path": "/home/dev/acme"})
	require.False(t, regResult.IsError)

	listResult := callTool(t, server, "list_projects", nil)
	require.False(t, listResult.IsError)
	var projects mcp.ListProjectsResult
	require.NoError(t, json.Unmarshal([]byte(listResult.Content[0].Text), &projects))
	require.Len(t, projects.Projects, 1)
	assert.Equal(t, "acme", projects.Projects[0].Name)
}

func TestToolsCallSearchMemory(t *testing.T) {
	server := newTestServer(t)

	_ = callTool(t, server, "add_memory", map[string]interface{}{
		"content": "the authentication service validates JWT tokens on every request",
		"kind":    "fact", "project": "acme",
	})

	searchResult := callTool(t, server, "search_memory", map[string]interface{}{
		"query": "authentication tokens", "project": "acme",
	})
	require.False(t, searchResult.IsError)
	var results mcp.SearchMemoryResult
	require.NoError(t, json.Unmarshal([]byte(searchResult.Content[0].Text), &results))
	assert.GreaterOrEqual(t, results.Total, 1)
}

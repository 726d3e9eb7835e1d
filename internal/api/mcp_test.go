package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/errorblob/internal/model"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

// --- tests ---

func TestMCPTool_CommitAndLook(t *testing.T) {
	deps := newTestDeps(t)

	result := callTool(t, mcpCommit(deps), "commit_error", map[string]interface{}{
		"error_text": "ModuleNotFoundError: No module named 'pandas'",
		"fix_text":   "pip install pandas",
		"tags":       []interface{}{"python", "pip"},
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); !strings.Contains(text, "1") {
		t.Fatalf("expected record id in response, got: %s", text)
	}

	recs, err := deps.Store.List(context.Background())
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(recs) != 1 || recs[0].Author != "lee" {
		t.Fatalf("records = %+v", recs)
	}
	if len(recs[0].Tags) != 2 || recs[0].Tags[0] != "pip" {
		t.Errorf("tags = %v, want normalized [pip python]", recs[0].Tags)
	}

	result = callTool(t, mcpLook(deps), "look_error", map[string]interface{}{
		"query": "no module named pandas",
		"limit": 3,
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var matches []model.Match
	if err := json.Unmarshal([]byte(toolText(t, result)), &matches); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(matches) != 1 || matches[0].FixText != "pip install pandas" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestMCPTool_CommitRequiresFields(t *testing.T) {
	deps := newTestDeps(t)

	result := callTool(t, mcpCommit(deps), "commit_error", map[string]interface{}{
		"error_text": "boom",
	})
	if !result.IsError {
		t.Fatal("expected error when fix_text is missing")
	}

	result = callTool(t, mcpCommit(deps), "commit_error", map[string]interface{}{
		"error_text": "   ",
		"fix_text":   "x",
	})
	if !result.IsError {
		t.Fatal("expected error for blank error_text")
	}
}

func TestMCPTool_LookEmptyResult(t *testing.T) {
	deps := newTestDeps(t)

	result := callTool(t, mcpLook(deps), "look_error", map[string]interface{}{
		"query": "segfault",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_LookBlankQuery(t *testing.T) {
	deps := newTestDeps(t)
	callTool(t, mcpCommit(deps), "commit_error", map[string]interface{}{
		"error_text": "KeyError: 'x'",
		"fix_text":   "check the dict",
	})

	result := callTool(t, mcpLook(deps), "look_error", map[string]interface{}{"query": "  "})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
}

func TestMCPTool_LookRequiresQuery(t *testing.T) {
	result := callTool(t, mcpLook(newTestDeps(t)), "look_error", map[string]interface{}{})
	if !result.IsError {
		t.Fatal("expected error when query is missing")
	}
}

func TestMCPTool_ListAndDelete(t *testing.T) {
	deps := newTestDeps(t)
	for _, e := range []string{"first failure", "second failure", "third failure"} {
		if _, err := deps.Store.Commit(context.Background(), model.Draft{ErrorText: e, FixText: "fix"}); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}

	result := callTool(t, mcpList(deps), "list_errors", map[string]interface{}{"limit": 2})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var list ListResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &list); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if list.Total != 3 || len(list.Records) != 2 {
		t.Fatalf("list = %+v", list)
	}

	result = callTool(t, mcpDelete(deps), "delete_error", map[string]interface{}{"id": "2"})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	result = callTool(t, mcpDelete(deps), "delete_error", map[string]interface{}{"id": "2"})
	if !result.IsError {
		t.Fatal("expected error deleting a missing record")
	}
}

func TestMCPTool_Status(t *testing.T) {
	deps := newTestDeps(t)

	result := callTool(t, mcpStatus(deps), "errorblob_status", nil)
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var st StatusResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &st); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if st.Kind != model.KindLocal || st.Count != 0 || st.Team.Mode != "git" {
		t.Errorf("status = %+v", st)
	}
}

func TestMCPTool_BackendErrorSurfaced(t *testing.T) {
	deps := Deps{Store: failingStore{err: &model.BackendError{Op: "look", Transient: true, Err: errors.New("unavailable")}}}

	result := callTool(t, mcpLook(deps), "look_error", map[string]interface{}{"query": "x"})
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "transient") {
		t.Errorf("error text = %q, want transient classification", toolText(t, result))
	}
}

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(newTestDeps(t), "test")
	if s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

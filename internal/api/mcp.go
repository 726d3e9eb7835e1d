package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/errorblob/internal/model"
)

const defaultListLimit = 20

// NewMCPServer creates an MCP server exposing the error database as tools.
func NewMCPServer(deps Deps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"errorblob",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("errorblob stores error messages together with the fix that resolved them. "+
			"Call look_error with a new error before debugging it; call commit_error once you have fixed it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("commit_error",
			mcp.WithDescription("Save an error message and the fix that resolved it."),
			mcp.WithString("error_text", mcp.Description("The error message or signature"), mcp.Required()),
			mcp.WithString("fix_text", mcp.Description("How the error was fixed"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Optional tags, e.g. language or tool")),
			mcp.WithString("author", mcp.Description("Who found the fix (defaults to the configured author)")),
		),
		mcpCommit(deps),
	)

	s.AddTool(
		mcp.NewTool("look_error",
			mcp.WithDescription("Find stored fixes for errors similar to the given text, most relevant first."),
			mcp.WithString("query", mcp.Description("Error text to look up"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpLook(deps),
	)

	s.AddTool(
		mcp.NewTool("list_errors",
			mcp.WithDescription("List stored errors in the order they were committed."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of records (default 20)")),
		),
		mcpList(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_error",
			mcp.WithDescription("Delete a stored error by id."),
			mcp.WithString("id", mcp.Description("Record id"), mcp.Required()),
		),
		mcpDelete(deps),
	)

	s.AddTool(
		mcp.NewTool("errorblob_status",
			mcp.WithDescription("Report the active backend, its location and the number of stored errors."),
		),
		mcpStatus(deps),
	)

	return s
}

func mcpCommit(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		errText, err := req.RequireString("error_text")
		if err != nil {
			return mcpError("error_text is required"), nil
		}
		fixText, err := req.RequireString("fix_text")
		if err != nil {
			return mcpError("fix_text is required"), nil
		}
		author := req.GetString("author", "")
		if author == "" {
			author = deps.Author
		}

		rec, err := deps.Store.Commit(ctx, model.Draft{
			ErrorText: errText,
			FixText:   fixText,
			Tags:      req.GetStringSlice("tags", nil),
			Author:    author,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("commit failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Committed error %s", rec.ID)), nil
	}
}

func mcpLook(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", defaultLookLimit)
		if limit <= 0 {
			limit = defaultLookLimit
		}
		if limit > maxLookLimit {
			limit = maxLookLimit
		}

		matches, err := deps.Store.Look(ctx, query, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("look failed: %v", err)), nil
		}
		if len(matches) == 0 {
			return mcpText("[]"), nil
		}
		return mcpJSON(matches)
	}
}

func mcpList(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", defaultListLimit)
		if limit <= 0 {
			limit = defaultListLimit
		}

		recs, err := deps.Store.List(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("list failed: %v", err)), nil
		}
		resp := ListResponse{Records: recs, Total: len(recs)}
		if len(recs) > limit {
			resp.Records = recs[:limit]
		}
		return mcpJSON(resp)
	}
}

func mcpDelete(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		ok, err := deps.Store.Delete(ctx, id)
		if err != nil {
			return mcpError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		if !ok {
			return mcpError(fmt.Sprintf("error %s not found", id)), nil
		}
		return mcpText(fmt.Sprintf("Deleted error %s", id)), nil
	}
}

func mcpStatus(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Store.Status(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("status failed: %v", err)), nil
		}
		return mcpJSON(StatusResponse{Status: st, Team: deps.Team})
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}

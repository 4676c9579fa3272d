// Package mcptools exposes the research backend to MCP clients: search and
// ask tools backed by the resilient API client, plus the local conversation
// archive as a resource.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/barrister-ai/barrister/internal/api"
	"github.com/barrister-ai/barrister/internal/history"
)

// ResearchClient abstracts the API client for the MCP layer.
type ResearchClient interface {
	Search(ctx context.Context, req api.SearchRequest) (*api.SearchResponse, error)
	SendChat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	UploadDocument(ctx context.Context, req api.UploadDocumentRequest) (*api.UploadDocumentResponse, error)
}

// ArchiveLister abstracts the local archive for the recent-history resource.
type ArchiveLister interface {
	ListConversations(limit int) ([]history.Conversation, error)
}

// Deps holds dependencies for the MCP server.
type Deps struct {
	Client  ResearchClient
	Archive ArchiveLister // optional; history://recent errors when nil
}

// NewServer creates an MCP server with all barrister tools and resources
// registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"barrister",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("barrister: legal research over precedent and infobank corpora, with a local conversation archive."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("legal_search",
			mcp.WithDescription("Search the legal corpora and return ranked results with sources."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("scope", mcp.Description("Corpus scope: precedent, infobank, both, or workspace (default both)")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpLegalSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("legal_ask",
			mcp.WithDescription("Ask a single research question and return the answer with its citations."),
			mcp.WithString("question", mcp.Description("The question to research"), mcp.Required()),
			mcp.WithString("scope", mcp.Description("Corpus scope: precedent, infobank, both, or workspace (default both)")),
		),
		mcpLegalAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("add_document",
			mcp.WithDescription("Upload a document to the workspace corpus so later questions can draw on it."),
			mcp.WithString("title", mcp.Description("Document title"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Plain-text document content"), mcp.Required()),
		),
		mcpAddDocument(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"history://recent",
			"Recent Conversations",
			mcp.WithResourceDescription("Last 10 archived conversations (titles only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func scopeArg(req mcp.CallToolRequest) (api.Scope, *mcp.CallToolResult) {
	raw := req.GetString("scope", string(api.ScopeBoth))
	scope := api.Scope(raw)
	if !api.ValidScope(scope) {
		return "", mcpError(fmt.Sprintf("unknown scope %q", raw))
	}
	return scope, nil
}

func mcpLegalSearch(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		scope, errResult := scopeArg(req)
		if errResult != nil {
			return errResult, nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		resp, err := deps.Client.Search(ctx, api.SearchRequest{Query: query, Scope: scope, Limit: limit})
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}

		type hit struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Snippet string  `json:"snippet,omitempty"`
			Source  string  `json:"source"`
			Score   float64 `json:"score"`
		}
		out := struct {
			Status  string `json:"status"`
			Results []hit  `json:"results"`
		}{Status: resp.Status}
		for _, r := range resp.Results {
			out.Results = append(out.Results, hit{
				Title:   r.Title,
				URL:     r.URL,
				Snippet: r.Snippet,
				Source:  string(r.Source),
				Score:   r.Score,
			})
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpLegalAsk(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}
		scope, errResult := scopeArg(req)
		if errResult != nil {
			return errResult, nil
		}

		resp, err := deps.Client.SendChat(ctx, api.ChatRequest{
			Message:  question,
			Messages: []api.ChatMessage{{Role: "user", Content: question}},
			Scope:    scope,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		text := resp.Answer
		if len(resp.Citations) > 0 {
			text += "\n\nSources:\n"
			for i, c := range resp.Citations {
				text += fmt.Sprintf("%d. %s — %s\n", i+1, c.Title, c.URL)
			}
		}
		return mcpText(text), nil
	}
}

func mcpAddDocument(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		resp, err := deps.Client.UploadDocument(ctx, api.UploadDocumentRequest{Title: title, Content: content})
		if err != nil {
			return mcpError(fmt.Sprintf("upload failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Uploaded document %s", resp.ID)), nil
	}
}

func mcpResourceRecent(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Archive == nil {
			return nil, fmt.Errorf("no local archive configured")
		}

		convs, err := deps.Archive.ListConversations(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list conversations: %w", err)
		}

		type convSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			UpdatedAt string `json:"updated_at"`
		}

		summaries := make([]convSummary, len(convs))
		for i, c := range convs {
			title := c.Title
			if utf8.RuneCountInString(title) > 200 {
				runes := []rune(title)
				title = string(runes[:200]) + "..."
			}
			summaries[i] = convSummary{
				ID:        c.ID,
				Title:     title,
				UpdatedAt: c.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal conversations: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
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

package mcptools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/barrister-ai/barrister/internal/api"
	"github.com/barrister-ai/barrister/internal/history"
)

// --- mocks ---

type mockClient struct {
	searchResp *api.SearchResponse
	searchErr  error
	chatResp   *api.ChatResponse
	chatErr    error
	uploadResp *api.UploadDocumentResponse
	uploadErr  error

	lastSearch api.SearchRequest
	lastChat   api.ChatRequest
	lastUpload api.UploadDocumentRequest
}

func (m *mockClient) Search(_ context.Context, req api.SearchRequest) (*api.SearchResponse, error) {
	m.lastSearch = req
	return m.searchResp, m.searchErr
}

func (m *mockClient) SendChat(_ context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	m.lastChat = req
	return m.chatResp, m.chatErr
}

func (m *mockClient) UploadDocument(_ context.Context, req api.UploadDocumentRequest) (*api.UploadDocumentResponse, error) {
	m.lastUpload = req
	return m.uploadResp, m.uploadErr
}

type mockArchive struct {
	convs []history.Conversation
	err   error
}

func (m *mockArchive) ListConversations(limit int) ([]history.Conversation, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.convs) > limit {
		return m.convs[:limit], nil
	}
	return m.convs, nil
}

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

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestTool_LegalSearch(t *testing.T) {
	client := &mockClient{searchResp: &api.SearchResponse{
		Status: "ok",
		Results: []api.SearchResult{
			{Title: "Donoghue v. Stevenson", URL: "https://example.com/donoghue", Source: api.ScopePrecedent, Score: 0.92},
		},
	}}
	handler := mcpLegalSearch(Deps{Client: client})

	result, err := handler(context.Background(), makeCallToolRequest("legal_search", map[string]interface{}{
		"query": "duty of care",
		"scope": "precedent",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	if client.lastSearch.Query != "duty of care" || client.lastSearch.Scope != api.ScopePrecedent {
		t.Errorf("search request = %+v", client.lastSearch)
	}
	if client.lastSearch.Limit != 5 {
		t.Errorf("default limit = %d, want 5", client.lastSearch.Limit)
	}

	var out struct {
		Status  string `json:"status"`
		Results []struct {
			Title string `json:"title"`
		} `json:"results"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if out.Status != "ok" || len(out.Results) != 1 || out.Results[0].Title != "Donoghue v. Stevenson" {
		t.Errorf("result = %+v", out)
	}
}

func TestTool_LegalSearchValidation(t *testing.T) {
	handler := mcpLegalSearch(Deps{Client: &mockClient{}})

	result, _ := handler(context.Background(), makeCallToolRequest("legal_search", map[string]interface{}{}))
	if !result.IsError {
		t.Error("missing query accepted")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("legal_search", map[string]interface{}{
		"query": "x",
		"scope": "galaxy",
	}))
	if !result.IsError {
		t.Error("invalid scope accepted")
	}
}

func TestTool_LegalAsk(t *testing.T) {
	client := &mockClient{chatResp: &api.ChatResponse{
		RequestID: "rq",
		Answer:    "Negligence requires a duty of care.",
		Citations: []api.Citation{
			{Title: "Donoghue v. Stevenson", URL: "https://example.com/donoghue", Source: api.ScopePrecedent},
		},
	}}
	handler := mcpLegalAsk(Deps{Client: client})

	result, err := handler(context.Background(), makeCallToolRequest("legal_ask", map[string]interface{}{
		"question": "what is negligence",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	if client.lastChat.Scope != api.ScopeBoth {
		t.Errorf("default scope = %v", client.lastChat.Scope)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "Negligence requires a duty of care.") {
		t.Errorf("answer missing: %s", text)
	}
	if !strings.Contains(text, "1. Donoghue v. Stevenson") {
		t.Errorf("citations missing: %s", text)
	}
}

func TestTool_LegalAskFailure(t *testing.T) {
	client := &mockClient{chatErr: &api.Error{Status: 503, Code: api.CodeServiceUnavailable, Message: "down"}}
	handler := mcpLegalAsk(Deps{Client: client})

	result, err := handler(context.Background(), makeCallToolRequest("legal_ask", map[string]interface{}{
		"question": "anything",
	}))
	if err != nil {
		t.Fatalf("handler error should be in-band: %v", err)
	}
	if !result.IsError {
		t.Error("backend failure not reported as tool error")
	}
}

func TestTool_AddDocument(t *testing.T) {
	client := &mockClient{uploadResp: &api.UploadDocumentResponse{ID: "doc-1", Title: "Lease"}}
	handler := mcpAddDocument(Deps{Client: client})

	result, err := handler(context.Background(), makeCallToolRequest("add_document", map[string]interface{}{
		"title":   "Lease",
		"content": "The tenant shall...",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if client.lastUpload.Title != "Lease" {
		t.Errorf("upload = %+v", client.lastUpload)
	}
	if !strings.Contains(toolText(t, result), "doc-1") {
		t.Errorf("result missing doc id: %s", toolText(t, result))
	}
}

func TestResource_RecentConversations(t *testing.T) {
	archive := &mockArchive{convs: []history.Conversation{
		{ID: "c1", Title: "statute of frauds", UpdatedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)},
		{ID: "c2", Title: "parol evidence", UpdatedAt: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)},
	}}
	handler := mcpResourceRecent(Deps{Archive: archive})

	contents, err := handler(context.Background(), makeReadResourceRequest("history://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("resource not JSON: %v", err)
	}
	if len(summaries) != 2 || summaries[0].ID != "c1" || summaries[1].Title != "parol evidence" {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestResource_RecentWithoutArchive(t *testing.T) {
	handler := mcpResourceRecent(Deps{})
	if _, err := handler(context.Background(), makeReadResourceRequest("history://recent")); err == nil {
		t.Error("expected error with no archive")
	}
}

func TestNewServerRegisters(t *testing.T) {
	s := NewServer(Deps{Client: &mockClient{}, Archive: &mockArchive{}})
	if s == nil {
		t.Fatal("NewServer returned nil")
	}
}

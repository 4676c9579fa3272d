package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/barrister-ai/barrister/internal/api"
)

func newTestServer(t *testing.T, opts Options) (*Server, *api.Client) {
	t.Helper()
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := api.NewClient(api.ClientConfig{
		BaseURL: ts.URL,
		Token:   srv.Token(),
	})
	return srv, client
}

func TestHealth(t *testing.T) {
	srv := New(Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestLoginDomainEnforcement(t *testing.T) {
	_, client := newTestServer(t, Options{AllowedDomains: []string{"example.com"}})

	if _, err := client.Login(context.Background(), api.LoginRequest{Email: "alice@example.com"}); err != nil {
		t.Fatalf("allowed login failed: %v", err)
	}

	_, err := client.Login(context.Background(), api.LoginRequest{Email: "mallory@evil.com"})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *api.Error", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Code != api.CodeAuthDomainRejected {
		t.Errorf("got %d/%s", apiErr.Status, apiErr.Code)
	}
}

func TestChatRequiresAuth(t *testing.T) {
	srv := New(Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := api.NewClient(api.ClientConfig{BaseURL: ts.URL, Token: "wrong-token"})
	_, err := client.SendChat(context.Background(), api.ChatRequest{Message: "hi"})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *api.Error", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Code != api.CodeAuthInvalidToken {
		t.Errorf("got %d/%s", apiErr.Status, apiErr.Code)
	}
}

func TestChatRoundTrip(t *testing.T) {
	_, client := newTestServer(t, Options{})

	resp, err := client.SendChat(context.Background(), api.ChatRequest{
		Message: "what is consideration",
		Scope:   api.ScopeBoth,
	})
	if err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	if resp.ConversationID == "" || resp.MessageID == "" || resp.RequestID == "" {
		t.Errorf("identifiers missing: %+v", resp)
	}
	if !strings.Contains(resp.Answer, "what is consideration") {
		t.Errorf("Answer = %q", resp.Answer)
	}
	if len(resp.Citations) == 0 {
		t.Error("no citations returned")
	}

	// A follow-up in the same conversation keeps the id.
	resp2, err := client.SendChat(context.Background(), api.ChatRequest{
		ConversationID: resp.ConversationID,
		Message:        "and detriment?",
		Scope:          api.ScopeBoth,
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp2.ConversationID != resp.ConversationID {
		t.Errorf("ConversationID changed: %q -> %q", resp.ConversationID, resp2.ConversationID)
	}
	if !strings.Contains(resp2.Answer, "continuing") {
		t.Errorf("Answer = %q, want the stored thread acknowledged", resp2.Answer)
	}
}

func TestChatValidation(t *testing.T) {
	_, client := newTestServer(t, Options{})

	_, err := client.SendChat(context.Background(), api.ChatRequest{Message: "  "})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Code != api.CodeValidationError {
		t.Errorf("blank message error = %v", err)
	}

	_, err = client.SendChat(context.Background(), api.ChatRequest{Message: "hi", Scope: "galaxy"})
	if !errors.As(err, &apiErr) || apiErr.Code != api.CodeInvalidRequest {
		t.Errorf("bad scope error = %v", err)
	}
}

func TestSearchDegradedSourceIsPartialNotError(t *testing.T) {
	_, client := newTestServer(t, Options{DegradedSources: []string{"infobank"}})

	resp, err := client.Search(context.Background(), api.SearchRequest{Query: "easement", Scope: api.ScopeBoth})
	if err != nil {
		t.Fatalf("Search: %v (partial success must not be an error)", err)
	}
	if resp.Status != "partial" {
		t.Errorf("Status = %q", resp.Status)
	}
	var failed, ok int
	for _, src := range resp.Sources {
		switch src.Status {
		case "failed":
			failed++
		case "ok":
			ok++
		}
	}
	if failed != 1 || ok != 1 {
		t.Errorf("sources = %+v", resp.Sources)
	}
	for _, r := range resp.Results {
		if r.Source == api.ScopeInfobank {
			t.Error("degraded source still returned results")
		}
	}
}

func TestSearchQueryTooLong(t *testing.T) {
	_, client := newTestServer(t, Options{})

	_, err := client.Search(context.Background(), api.SearchRequest{
		Query: strings.Repeat("q", maxQueryLength+1),
		Scope: api.ScopeBoth,
	})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Code != api.CodeQueryTooLong {
		t.Errorf("error = %v, want QUERY_TOO_LONG", err)
	}
}

func TestRateLimitEnvelope(t *testing.T) {
	srv := New(Options{RateLimitEvery: 1})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(api.ChatRequest{Message: "hi"})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/chat", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+srv.Token())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", resp.Header.Get("Retry-After"))
	}

	var envelope struct {
		Error struct {
			Code              string  `json:"code"`
			RequestID         string  `json:"requestId"`
			RetryAfterSeconds float64 `json:"retryAfterSeconds"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Code != string(api.CodeRateLimited) {
		t.Errorf("code = %q", envelope.Error.Code)
	}
	if envelope.Error.RequestID == "" {
		t.Error("requestId missing from envelope")
	}
	if envelope.Error.RetryAfterSeconds != 1 {
		t.Errorf("retryAfterSeconds = %v", envelope.Error.RetryAfterSeconds)
	}
}

func TestUploadAndFeedback(t *testing.T) {
	_, client := newTestServer(t, Options{})

	up, err := client.UploadDocument(context.Background(), api.UploadDocumentRequest{
		Title:   "Lease Agreement",
		Content: "The tenant shall...",
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}
	if up.ID == "" || up.Title != "Lease Agreement" {
		t.Errorf("upload response = %+v", up)
	}

	_, err = client.UploadDocument(context.Background(), api.UploadDocumentRequest{Title: "empty"})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Code != api.CodeValidationError {
		t.Errorf("empty upload error = %v", err)
	}

	if err := client.SendFeedback(context.Background(), api.FeedbackRequest{RequestID: "rq-1", Helpful: true}); err != nil {
		t.Errorf("SendFeedback: %v", err)
	}
}

func TestWorkspaceSearchReturnsUploadedDocuments(t *testing.T) {
	_, client := newTestServer(t, Options{})

	up, err := client.UploadDocument(context.Background(), api.UploadDocumentRequest{
		Title:   "Shareholder Agreement",
		Content: strings.Repeat("the parties agree ", 20),
	})
	if err != nil {
		t.Fatalf("UploadDocument: %v", err)
	}

	resp, err := client.Search(context.Background(), api.SearchRequest{Query: "parties", Scope: api.ScopeWorkspace})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Source != api.ScopeWorkspace {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %+v", resp.Results)
	}
	r := resp.Results[0]
	if r.Title != "Shareholder Agreement" || !strings.Contains(r.URL, up.ID) {
		t.Errorf("result = %+v", r)
	}
	if len(r.Snippet) == 0 || !strings.HasSuffix(r.Snippet, "...") {
		t.Errorf("Snippet = %q, want truncated content", r.Snippet)
	}
}

func TestContextLimitWarning(t *testing.T) {
	_, client := newTestServer(t, Options{})

	msgs := make([]api.ChatMessage, api.MaxHistoryMessages)
	for i := range msgs {
		msgs[i] = api.ChatMessage{Role: "user", Content: "padding"}
	}
	resp, err := client.SendChat(context.Background(), api.ChatRequest{Message: "hi", Messages: msgs})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.ContextLimitWarning {
		t.Error("ContextLimitWarning not set at the history cap")
	}
}

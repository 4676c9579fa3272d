// Package devserver is a self-contained reference backend implementing the
// research API wire contract. It exists so the CLI, the resilience layer,
// and integrations can be exercised end to end without the production
// service: it issues tokens, answers chat and search calls with canned
// material, and can inject rate limits and degraded sources on demand.
package devserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/barrister-ai/barrister/internal/api"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Options configures the reference backend.
type Options struct {
	// Token, when set, is the only bearer token accepted and the one issued
	// by login. Empty means issue (and accept) a generated token.
	Token string

	// AllowedDomains restricts login emails. Empty means any domain.
	AllowedDomains []string

	// DegradedSources lists sources reported as failed on every search,
	// producing partial responses.
	DegradedSources []string

	// RateLimitEvery, when > 0, makes every Nth chat request fail with 429
	// and a Retry-After header. Useful for exercising client retry behavior.
	RateLimitEvery int

	Logger *slog.Logger
}

// Server implements the wire contract over canned data.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	token     string
	chatCalls atomic.Int64
	docs      map[string]api.UploadDocumentRequest
	convs     map[string][]api.ChatMessage
}

// New creates a Server. Use Handler to obtain the http.Handler.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	token := opts.Token
	if token == "" {
		token = uuid.NewString()
	}
	return &Server{
		opts:   opts,
		logger: logger,
		token:  token,
		docs:   make(map[string]api.UploadDocumentRequest),
		convs:  make(map[string][]api.ChatMessage),
	}
}

// Token returns the bearer token the server accepts.
func (s *Server) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Post("/auth/login", s.handleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(s.bearerAuth)
		pr.Post("/v1/chat", s.handleChat)
		pr.Post("/v1/search", s.handleSearch)
		pr.Post("/v1/feedback", s.handleFeedback)
		pr.Post("/v1/workspace/documents", s.handleUpload)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(s.Token())) != 1 {
			writeError(w, http.StatusUnauthorized, api.CodeAuthInvalidToken, "invalid or missing bearer token", nil, 0)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	at := strings.LastIndex(req.Email, "@")
	if at <= 0 || at == len(req.Email)-1 {
		writeError(w, http.StatusBadRequest, api.CodeValidationError, "email is required", nil, 0)
		return
	}
	if len(s.opts.AllowedDomains) > 0 {
		domain := strings.ToLower(req.Email[at+1:])
		allowed := false
		for _, d := range s.opts.AllowedDomains {
			if strings.EqualFold(d, domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			writeError(w, http.StatusForbidden, api.CodeAuthDomainRejected,
				fmt.Sprintf("domain %q is not allowed", domain), nil, 0)
			return
		}
	}
	writeJSON(w, http.StatusOK, api.LoginResponse{Token: s.Token(), Email: req.Email})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if n := int64(s.opts.RateLimitEvery); n > 0 && s.chatCalls.Add(1)%n == 0 {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, api.CodeRateLimited, "simulated rate limit", nil, 1)
		return
	}

	var req api.ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, api.CodeValidationError, "message is required", nil, 0)
		return
	}
	if req.Scope != "" && !api.ValidScope(req.Scope) {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Sprintf("unknown scope %q", req.Scope), nil, 0)
		return
	}

	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	s.mu.Lock()
	prior := len(s.convs[convID])
	s.mu.Unlock()

	answer := cannedAnswer(req)
	if prior > 0 {
		answer = fmt.Sprintf("%s (continuing a %d-message thread)", answer, prior)
	}
	resp := api.ChatResponse{
		RequestID:      uuid.NewString(),
		ConversationID: convID,
		MessageID:      uuid.NewString(),
		Answer:         answer,
		Citations: []api.Citation{
			{Title: "Reference Authority", URL: "https://devserver.local/authority", Snippet: "canned snippet", Source: api.ScopePrecedent},
		},
		ContextLimitWarning: len(req.Messages) >= api.MaxHistoryMessages,
	}

	s.mu.Lock()
	s.convs[convID] = append(req.Messages, api.ChatMessage{Role: "assistant", Content: answer})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func snippetOf(content string) string {
	const max = 120
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}

func cannedAnswer(req api.ChatRequest) string {
	if req.Regenerate {
		return fmt.Sprintf("Regenerated answer to: %s", req.Message)
	}
	return fmt.Sprintf("Canned answer to: %s", req.Message)
}

const maxQueryLength = 500

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req api.SearchRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, api.CodeValidationError, "query is required", nil, 0)
		return
	}
	if len(req.Query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, api.CodeQueryTooLong,
			fmt.Sprintf("query exceeds %d characters", maxQueryLength), nil, 0)
		return
	}

	degraded := make(map[string]bool, len(s.opts.DegradedSources))
	for _, src := range s.opts.DegradedSources {
		degraded[src] = true
	}

	resp := api.SearchResponse{
		RequestID: uuid.NewString(),
		Status:    "ok",
	}

	// Workspace scope searches the caller's uploaded documents.
	if req.Scope == api.ScopeWorkspace {
		resp.Sources = append(resp.Sources, api.SourceStatus{Source: api.ScopeWorkspace, Status: "ok"})
		s.mu.Lock()
		for id, doc := range s.docs {
			resp.Results = append(resp.Results, api.SearchResult{
				Title:   doc.Title,
				URL:     "https://devserver.local/workspace/" + id,
				Snippet: snippetOf(doc.Content),
				Source:  api.ScopeWorkspace,
			})
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	for _, source := range []api.Scope{api.ScopePrecedent, api.ScopeInfobank} {
		if degraded[string(source)] {
			resp.Status = "partial"
			resp.Sources = append(resp.Sources, api.SourceStatus{
				Source: source, Status: "failed", Message: "source temporarily degraded",
			})
			continue
		}
		resp.Sources = append(resp.Sources, api.SourceStatus{Source: source, Status: "ok"})
		resp.Results = append(resp.Results, api.SearchResult{
			Title:   fmt.Sprintf("Result for %q", req.Query),
			URL:     "https://devserver.local/" + string(source),
			Snippet: "canned search snippet",
			Source:  source,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req api.FeedbackRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, api.CodeValidationError, "requestId is required", nil, 0)
		return
	}
	s.logger.Info("feedback received", "request_id", req.RequestID, "helpful", req.Helpful)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req api.UploadDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, api.CodeValidationError, "title and content are required", nil, 0)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.docs[id] = req
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, api.UploadDocumentResponse{ID: id, Title: req.Title})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, api.CodeInvalidRequest,
			fmt.Sprintf("invalid request body: %v", err), nil, 0)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code api.ErrorCode, msg string, retryable *bool, retryAfter float64) {
	w.Header().Set("Content-Type", "application/json")
	if retryAfter > 0 && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)))
	}
	w.WriteHeader(status)
	body := map[string]any{
		"code":      code,
		"message":   msg,
		"requestId": uuid.NewString(),
	}
	if retryable != nil {
		body["retryable"] = *retryable
	}
	if retryAfter > 0 {
		body["retryAfterSeconds"] = retryAfter
	}
	json.NewEncoder(w).Encode(map[string]any{"error": body})
}

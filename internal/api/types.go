package api

// Scope names the document corpus partition a query targets.
type Scope string

const (
	ScopePrecedent Scope = "precedent"
	ScopeInfobank  Scope = "infobank"
	ScopeBoth      Scope = "both"
	ScopeWorkspace Scope = "workspace"
)

// ValidScope reports whether s is one of the accepted scope values.
func ValidScope(s Scope) bool {
	switch s {
	case ScopePrecedent, ScopeInfobank, ScopeBoth, ScopeWorkspace:
		return true
	}
	return false
}

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Citation is a source reference attached to a generated answer. Server
// produced; order is preserved as returned, with no dedup or resort.
type Citation struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  Scope  `json:"source"`
}

// MaxHistoryMessages is the hard cap on conversation history sent per chat
// request; the oldest messages are dropped first.
const MaxHistoryMessages = 50

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	ConversationID string        `json:"conversationId,omitempty"`
	Message        string        `json:"message"`
	Messages       []ChatMessage `json:"messages"`
	Scope          Scope         `json:"scope"`
	Regenerate     bool          `json:"regenerate,omitempty"`
}

// ChatResponse is the body of a successful chat call.
type ChatResponse struct {
	RequestID           string     `json:"requestId"`
	ConversationID      string     `json:"conversationId"`
	MessageID           string     `json:"messageId"`
	Answer              string     `json:"answer"`
	Citations           []Citation `json:"citations"`
	ContextLimitWarning bool       `json:"contextLimitWarning,omitempty"`
}

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	Scope Scope  `json:"scope"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResult is one ranked hit.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet,omitempty"`
	Source  Scope   `json:"source"`
	Score   float64 `json:"score"`
}

// SourceStatus reports the outcome of one backend source in a search.
type SourceStatus struct {
	Source  Scope  `json:"source"`
	Status  string `json:"status"` // "ok" or "failed"
	Message string `json:"message,omitempty"`
}

// SearchResponse is the body of a successful search call. Partial success
// (some backends failed, some succeeded) is still a success: Status becomes
// "partial" and Sources carries per-source detail. It is never an error.
type SearchResponse struct {
	RequestID string         `json:"requestId"`
	Status    string         `json:"status"` // "ok" or "partial"
	Results   []SearchResult `json:"results"`
	Sources   []SourceStatus `json:"sources,omitempty"`
}

// FeedbackRequest is the body of POST /v1/feedback.
type FeedbackRequest struct {
	RequestID string `json:"requestId"`
	MessageID string `json:"messageId,omitempty"`
	Helpful   bool   `json:"helpful"`
	Comment   string `json:"comment,omitempty"`
}

// UploadDocumentRequest is the body of POST /v1/workspace/documents.
type UploadDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// UploadDocumentResponse is the body of a successful workspace upload.
type UploadDocumentResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email string `json:"email"`
}

// LoginResponse carries the bearer token issued for the session.
type LoginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

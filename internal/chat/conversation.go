// Package chat owns the in-memory multi-turn conversation state: optimistic
// appends with rollback, regenerate/retry bookkeeping, and projections of the
// current state (markdown export, clipboard copy).
package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/barrister-ai/barrister/internal/api"
)

// Precondition errors, distinct from network failures.
var (
	// ErrNoAssistantMessage is returned by RegenerateLast before any answer
	// has arrived.
	ErrNoAssistantMessage = errors.New("no assistant message to regenerate")

	// ErrNoPriorRequest is returned by RetryLast when nothing has been sent.
	ErrNoPriorRequest = errors.New("no prior request to retry")
)

// Phase is the explicit conversation lifecycle state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Sender abstracts the API client for this package.
type Sender interface {
	SendChat(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
}

// message is a conversation turn plus the correlation ID assigned at
// optimistic-append time. Rollback removes by ID, never by content match, so
// a fast double-submit of identical text cannot remove the wrong turn.
type message struct {
	api.ChatMessage
	id string
}

// Conversation is the chat state machine. All exported methods are safe for
// concurrent use; the internal lock is never held across a network call, so
// overlapping operations interleave exactly as independent UI events would.
//
// Each outgoing request is stamped with a monotonic sequence number. A
// response resolving after a newer request has been initiated is discarded
// rather than applied, so responses take effect in initiation order.
type Conversation struct {
	client Sender
	clip   ClipboardWriter

	mu                     sync.Mutex
	msgs                   []message
	conversationID         string
	lastAssistantMessageID string
	lastCitations          []api.Citation
	contextLimitWarning    bool
	lastRequest            *api.ChatRequest
	phase                  Phase
	lastErr                error
	seq                    uint64
}

// New creates an empty idle conversation backed by the given client.
// Clipboard access uses the system clipboard unless overridden with
// SetClipboard.
func New(client Sender) *Conversation {
	return &Conversation{
		client: client,
		clip:   systemClipboard{},
	}
}

// SetClipboard replaces the clipboard writer (used by tests and headless
// environments).
func (c *Conversation) SetClipboard(w ClipboardWriter) {
	c.mu.Lock()
	c.clip = w
	c.mu.Unlock()
}

// SendMessage appends the user's turn optimistically, sends it with the
// trailing conversation history (capped at the 50 most recent messages,
// oldest dropped first), and appends the assistant's answer on success. On
// failure the optimistic turn is rolled back and the error is propagated
// untouched so the caller decides the UI treatment.
func (c *Conversation) SendMessage(ctx context.Context, text string, scope api.Scope) (*api.ChatResponse, error) {
	c.mu.Lock()
	optimisticID := uuid.NewString()
	c.msgs = append(c.msgs, message{
		ChatMessage: api.ChatMessage{Role: "user", Content: text},
		id:          optimisticID,
	})
	req := api.ChatRequest{
		ConversationID: c.conversationID,
		Message:        text,
		Messages:       historyWindow(c.msgs),
		Scope:          scope,
	}
	c.lastRequest = &req
	c.seq++
	mySeq := c.seq
	c.phase = PhaseSending
	c.mu.Unlock()

	return c.dispatch(ctx, req, mySeq, optimisticID)
}

// RegenerateLast re-asks the question behind the most recent assistant
// message, excluding that answer from the history, and replaces it in place
// on success. No new optimistic user turn is appended. Returns
// ErrNoAssistantMessage (state untouched) when nothing can be regenerated.
func (c *Conversation) RegenerateLast(ctx context.Context) (*api.ChatResponse, error) {
	c.mu.Lock()
	asstIdx := lastIndexByRole(c.msgs, "assistant")
	if asstIdx < 0 {
		c.mu.Unlock()
		return nil, ErrNoAssistantMessage
	}
	userIdx := -1
	for i := asstIdx - 1; i >= 0; i-- {
		if c.msgs[i].Role == "user" {
			userIdx = i
			break
		}
	}
	if userIdx < 0 {
		c.mu.Unlock()
		return nil, ErrNoAssistantMessage
	}

	history := make([]message, 0, len(c.msgs)-1)
	for i, m := range c.msgs {
		if i == asstIdx {
			continue
		}
		history = append(history, m)
	}

	scope := api.ScopeBoth
	if c.lastRequest != nil {
		scope = c.lastRequest.Scope
	}
	req := api.ChatRequest{
		ConversationID: c.conversationID,
		Message:        c.msgs[userIdx].Content,
		Messages:       historyWindow(history),
		Scope:          scope,
		Regenerate:     true,
	}
	c.lastRequest = &req
	c.seq++
	mySeq := c.seq
	c.phase = PhaseSending
	c.mu.Unlock()

	return c.dispatch(ctx, req, mySeq, "")
}

// RetryLast re-issues the exact last built request verbatim, without
// rebuilding history. Returns ErrNoPriorRequest when nothing has been sent.
// This is the user-visible manual retry layered above the client's own
// low-level retry loop.
func (c *Conversation) RetryLast(ctx context.Context) (*api.ChatResponse, error) {
	c.mu.Lock()
	if c.lastRequest == nil {
		c.mu.Unlock()
		return nil, ErrNoPriorRequest
	}
	req := *c.lastRequest
	c.seq++
	mySeq := c.seq
	c.phase = PhaseSending
	c.mu.Unlock()

	return c.dispatch(ctx, req, mySeq, "")
}

// dispatch performs the network call and the sequence-checked state
// application. optimisticID names the user turn to roll back on failure; ""
// means the request carries no optimistic append.
func (c *Conversation) dispatch(ctx context.Context, req api.ChatRequest, mySeq uint64, optimisticID string) (*api.ChatResponse, error) {
	resp, err := c.client.SendChat(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if optimisticID != "" {
			c.removeByID(optimisticID)
		}
		if mySeq == c.seq {
			c.phase = PhaseErrored
			c.lastErr = err
		}
		return nil, err
	}

	// A newer request was initiated while this one was in flight: its
	// response owns the state now, so this one is discarded.
	if mySeq != c.seq {
		return resp, nil
	}

	if req.Regenerate {
		if idx := lastIndexByRole(c.msgs, "assistant"); idx >= 0 {
			c.msgs[idx].Content = resp.Answer
			c.msgs[idx].id = resp.MessageID
		} else {
			c.appendAssistant(resp)
		}
	} else {
		if optimisticID == "" {
			// Manual retry of a rolled-back send: restore the user turn
			// before its answer, unless a copy is already in place.
			if last := len(c.msgs) - 1; last < 0 || c.msgs[last].Role != "user" || c.msgs[last].Content != req.Message {
				c.msgs = append(c.msgs, message{
					ChatMessage: api.ChatMessage{Role: "user", Content: req.Message},
					id:          uuid.NewString(),
				})
			}
		}
		c.appendAssistant(resp)
	}

	c.conversationID = resp.ConversationID
	c.lastAssistantMessageID = resp.MessageID
	c.lastCitations = resp.Citations
	c.contextLimitWarning = resp.ContextLimitWarning
	c.phase = PhaseIdle
	c.lastErr = nil
	return resp, nil
}

func (c *Conversation) appendAssistant(resp *api.ChatResponse) {
	c.msgs = append(c.msgs, message{
		ChatMessage: api.ChatMessage{Role: "assistant", Content: resp.Answer},
		id:          resp.MessageID,
	})
}

// removeByID deletes the message with the given correlation ID, wherever it
// sits; state may have changed since the optimistic append.
func (c *Conversation) removeByID(id string) {
	for i, m := range c.msgs {
		if m.id == id {
			c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
			return
		}
	}
}

// Reset clears the whole conversation: messages, identifiers, citations,
// warnings, and the remembered last request. Full re-initialization, no
// partial reset.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
	c.conversationID = ""
	c.lastAssistantMessageID = ""
	c.lastCitations = nil
	c.contextLimitWarning = false
	c.lastRequest = nil
	c.phase = PhaseIdle
	c.lastErr = nil
}

// Messages returns a snapshot of the conversation, oldest first.
func (c *Conversation) Messages() []api.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.ChatMessage, len(c.msgs))
	for i, m := range c.msgs {
		out[i] = m.ChatMessage
	}
	return out
}

// Citations returns the citations of the most recent answer, in server order.
func (c *Conversation) Citations() []api.Citation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]api.Citation, len(c.lastCitations))
	copy(out, c.lastCitations)
	return out
}

// ConversationID returns the server-assigned conversation identifier, or ""
// before the first successful exchange.
func (c *Conversation) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// ContextLimitWarning reports whether the last answer was generated against
// a truncated context window.
func (c *Conversation) ContextLimitWarning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contextLimitWarning
}

// Phase returns the lifecycle state and, in PhaseErrored, the causing error.
func (c *Conversation) Phase() (Phase, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase, c.lastErr
}

// historyWindow trims a message list to the most recent MaxHistoryMessages,
// dropping the oldest first.
func historyWindow(msgs []message) []api.ChatMessage {
	start := 0
	if len(msgs) > api.MaxHistoryMessages {
		start = len(msgs) - api.MaxHistoryMessages
	}
	out := make([]api.ChatMessage, 0, len(msgs)-start)
	for _, m := range msgs[start:] {
		out = append(out, m.ChatMessage)
	}
	return out
}

func lastIndexByRole(msgs []message, role string) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return i
		}
	}
	return -1
}

package history

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is one archived research thread. Messages is populated by
// GetConversation and empty in listings.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []Message
}

// Message is one archived turn, with the citations that accompanied it.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
	Citations      []Citation
}

type Citation struct {
	Title   string
	URL     string
	Snippet string
	Source  string
}

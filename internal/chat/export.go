package chat

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

// ClipboardWriter abstracts the system clipboard so projections stay
// testable and headless environments can substitute their own sink.
type ClipboardWriter interface {
	WriteText(text string) error
}

type systemClipboard struct{}

func (systemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}

// ExportMarkdown renders the current conversation as a Markdown document:
// a top-level heading, one subheading per turn in order, and a numbered
// Sources section when the last answer carried citations.
func (c *Conversation) ExportMarkdown() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("# Legal Research Conversation\n")

	for _, m := range c.msgs {
		switch m.Role {
		case "user":
			sb.WriteString("\n## User\n\n")
		case "assistant":
			sb.WriteString("\n## Assistant\n\n")
		default:
			continue
		}
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}

	if len(c.lastCitations) > 0 {
		sb.WriteString("\n## Sources\n\n")
		for i, cit := range c.lastCitations {
			sb.WriteString(fmt.Sprintf("%d. [%s](%s)", i+1, cit.Title, cit.URL))
			if cit.Snippet != "" {
				sb.WriteString(" — " + cit.Snippet)
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// CopyLastAnswer writes the most recent assistant message to the clipboard.
// Returns false, without error, when there is no assistant message or the
// clipboard write fails.
func (c *Conversation) CopyLastAnswer() bool {
	c.mu.Lock()
	idx := lastIndexByRole(c.msgs, "assistant")
	var content string
	if idx >= 0 {
		content = c.msgs[idx].Content
	}
	clip := c.clip
	c.mu.Unlock()

	if idx < 0 {
		return false
	}
	return clip.WriteText(content) == nil
}

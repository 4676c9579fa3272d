package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/barrister-ai/barrister/internal/api"
	"github.com/barrister-ai/barrister/internal/chat"
	"github.com/barrister-ai/barrister/internal/history"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive research session",
	Long: `Start an interactive research session. Type a question and press enter;
slash commands control the conversation:

  /regenerate  ask for a fresh answer to the last question
  /retry       re-send the last request unchanged
  /reset       start a new conversation
  /export      write the conversation as Markdown to a file
  /copy        copy the last answer to the clipboard
  /scope       change the corpus scope
  /status      show circuit-breaker state per endpoint
  /quit        leave the session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := scopeFlag(cmd)
		if err != nil {
			return err
		}
		noArchive, _ := cmd.Flags().GetBool("no-archive")

		client, cfg, err := newResearchClient()
		if err != nil {
			return err
		}

		var archive *history.Archive
		if !noArchive {
			archive, err = history.Open(cfg.Storage.DataDir)
			if err != nil {
				printWarning("conversation archive unavailable: %v", err)
			} else {
				defer archive.Close()
			}
		}

		repl := &chatREPL{
			conv:    chat.New(client),
			client:  client,
			archive: archive,
			scope:   scope,
			in:      bufio.NewScanner(os.Stdin),
		}
		return repl.run(cmd.Context())
	},
}

type chatREPL struct {
	conv    *chat.Conversation
	client  *api.Client
	archive *history.Archive
	scope   api.Scope
	in      *bufio.Scanner

	// archiveID is allocated locally so exchanges can be persisted even
	// before the server assigns its own conversation id.
	archiveID string
}

func (r *chatREPL) run(ctx context.Context) error {
	fmt.Printf("Legal research session (scope: %s). Type /quit to leave.\n", r.scope)
	for {
		fmt.Print("\n> ")
		if !r.in.Scan() {
			fmt.Println()
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := r.command(ctx, line)
			if err != nil {
				printError("%v", err)
			}
			if done {
				return nil
			}
			continue
		}

		resp, err := r.conv.SendMessage(ctx, line, r.scope)
		if err != nil {
			printError("%v", describeAPIError(err))
			printStep("use /retry to try again")
			continue
		}
		r.printAnswer(resp)
		r.archiveExchange(line, resp)
	}
}

func (r *chatREPL) command(ctx context.Context, line string) (done bool, err error) {
	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/regenerate":
		resp, err := r.conv.RegenerateLast(ctx)
		if errors.Is(err, chat.ErrNoAssistantMessage) {
			return false, errors.New("nothing to regenerate yet")
		}
		if err != nil {
			return false, describeAPIError(err)
		}
		r.printAnswer(resp)
		return false, nil

	case "/retry":
		resp, err := r.conv.RetryLast(ctx)
		if errors.Is(err, chat.ErrNoPriorRequest) {
			return false, errors.New("nothing to retry yet")
		}
		if err != nil {
			return false, describeAPIError(err)
		}
		r.printAnswer(resp)
		return false, nil

	case "/reset":
		r.conv.Reset()
		r.archiveID = ""
		printSuccess("Conversation reset")
		return false, nil

	case "/export":
		path := strings.TrimSpace(rest)
		if path == "" {
			path = fmt.Sprintf("conversation-%s.md", time.Now().Format("20060102-150405"))
		}
		if err := os.WriteFile(path, []byte(r.conv.ExportMarkdown()), 0o644); err != nil {
			return false, err
		}
		printSuccess("Exported to %s", path)
		return false, nil

	case "/copy":
		if !r.conv.CopyLastAnswer() {
			return false, errors.New("no answer to copy")
		}
		printSuccess("Copied last answer to clipboard")
		return false, nil

	case "/status":
		for _, ep := range []string{api.EndpointChat, api.EndpointSearch, api.EndpointFeedback, api.EndpointWorkspace} {
			st := r.client.BreakerStatus(ep)
			state := "closed"
			if st.IsOpen {
				state = fmt.Sprintf("open (recovery window %s)", st.RecoveryTime.Round(time.Second))
			}
			fmt.Printf("  %-10s %s\n", ep, state)
		}
		return false, nil

	case "/scope":
		next := api.Scope(strings.TrimSpace(rest))
		if !api.ValidScope(next) {
			return false, fmt.Errorf("invalid scope %q (use precedent, infobank, both, workspace)", rest)
		}
		r.scope = next
		printSuccess("Scope set to %s", next)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
}

func (r *chatREPL) printAnswer(resp *api.ChatResponse) {
	fmt.Printf("\n%s\n", resp.Answer)
	printCitations(citationLines(resp.Citations))
	if r.conv.ContextLimitWarning() {
		printWarning("conversation history exceeds the context window; older messages were dropped")
	}
}

// archiveExchange persists one question/answer pair. Archive failures are
// reported but never interrupt the session.
func (r *chatREPL) archiveExchange(question string, resp *api.ChatResponse) {
	if r.archive == nil {
		return
	}
	if r.archiveID == "" {
		r.archiveID = resp.ConversationID
		if r.archiveID == "" {
			r.archiveID = uuid.NewString()
		}
		if err := r.archive.SaveConversation(history.Conversation{
			ID:    r.archiveID,
			Title: truncateTitle(question),
		}); err != nil {
			printWarning("could not archive conversation: %v", err)
			r.archive = nil
			return
		}
	}

	userMsg := history.Message{
		ID:             uuid.NewString(),
		ConversationID: r.archiveID,
		Role:           "user",
		Content:        question,
	}
	asstMsg := history.Message{
		ID:             resp.MessageID,
		ConversationID: r.archiveID,
		Role:           "assistant",
		Content:        resp.Answer,
		Citations:      archiveCitations(resp.Citations),
	}
	if asstMsg.ID == "" {
		asstMsg.ID = uuid.NewString()
	}
	for _, m := range []history.Message{userMsg, asstMsg} {
		if err := r.archive.AppendMessage(m); err != nil {
			printWarning("could not archive message: %v", err)
			return
		}
	}
}

func archiveCitations(cits []api.Citation) []history.Citation {
	out := make([]history.Citation, len(cits))
	for i, c := range cits {
		out[i] = history.Citation{
			Title:   c.Title,
			URL:     c.URL,
			Snippet: c.Snippet,
			Source:  string(c.Source),
		}
	}
	return out
}

func truncateTitle(s string) string {
	const max = 80
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func init() {
	chatCmd.Flags().String("scope", string(api.ScopeBoth), "corpus scope: precedent, infobank, both, workspace")
	chatCmd.Flags().Bool("no-archive", false, "do not save the conversation locally")
}

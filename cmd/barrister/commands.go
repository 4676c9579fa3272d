package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/barrister-ai/barrister/internal/api"
	"github.com/barrister-ai/barrister/internal/config"
	"github.com/barrister-ai/barrister/internal/history"
	"github.com/barrister-ai/barrister/internal/workspace"
)

func scopeFlag(cmd *cobra.Command) (api.Scope, error) {
	raw, _ := cmd.Flags().GetString("scope")
	scope := api.Scope(raw)
	if !api.ValidScope(scope) {
		return "", fmt.Errorf("invalid scope %q (use precedent, infobank, both, or workspace)", raw)
	}
	return scope, nil
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single research question",
	Long: `Ask a single research question and print the answer with its sources.

Examples:
  barrister ask "what is the statute of limitations for breach of contract"
  barrister ask --scope precedent "elements of negligence"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		scope, err := scopeFlag(cmd)
		if err != nil {
			return err
		}

		client, _, err := newResearchClient()
		if err != nil {
			return err
		}

		resp, err := client.SendChat(cmd.Context(), api.ChatRequest{
			Message:  question,
			Messages: []api.ChatMessage{{Role: "user", Content: question}},
			Scope:    scope,
		})
		if err != nil {
			return describeAPIError(err)
		}

		fmt.Println(resp.Answer)
		printCitations(citationLines(resp.Citations))
		if resp.ContextLimitWarning {
			printWarning("answer was generated against a truncated context window")
		}
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the legal corpora",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		scope, err := scopeFlag(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		client, _, err := newResearchClient()
		if err != nil {
			return err
		}

		resp, err := client.Search(cmd.Context(), api.SearchRequest{Query: query, Scope: scope, Limit: limit})
		if err != nil {
			return describeAPIError(err)
		}

		if resp.Status == "partial" {
			for _, src := range resp.Sources {
				if src.Status == "failed" {
					printWarning("source %s unavailable: %s", src.Source, src.Message)
				}
			}
		}

		if len(resp.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		for i, r := range resp.Results {
			fmt.Printf("\n%s [%s]\n", colorize(colorBold, fmt.Sprintf("%d. %s", i+1, r.Title)), r.Source)
			if r.URL != "" {
				fmt.Printf("  %s\n", colorize(colorCyan, r.URL))
			}
			if r.Snippet != "" {
				fmt.Printf("  %s\n", r.Snippet)
			}
		}
		return nil
	},
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback <request-id>",
	Short: "Rate a previous answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		helpful, _ := cmd.Flags().GetBool("helpful")
		comment, _ := cmd.Flags().GetString("comment")

		client, _, err := newResearchClient()
		if err != nil {
			return err
		}

		if err := client.SendFeedback(cmd.Context(), api.FeedbackRequest{
			RequestID: args[0],
			Helpful:   helpful,
			Comment:   comment,
		}); err != nil {
			return describeAPIError(err)
		}

		printSuccess("Feedback recorded for %s", args[0])
		return nil
	},
}

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate and store the API token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newResearchClient()
		if err != nil {
			return err
		}

		session := newSession(client, cfg)
		if err := session.Login(cmd.Context(), args[0]); err != nil {
			return describeAPIError(err)
		}

		printSuccess("Logged in as %s", session.Email())
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse the local conversation archive",
}

func openArchive() (*history.Archive, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return history.Open(cfg.Storage.DataDir)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		convs, err := archive.ListConversations(limit)
		if err != nil {
			return err
		}
		if len(convs) == 0 {
			fmt.Println("No conversations archived.")
			return nil
		}
		for _, c := range convs {
			title := c.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, shortID(c.ID)),
				c.UpdatedAt.Local().Format(time.DateTime),
				title,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one archived conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		conv, err := archive.GetConversation(args[0])
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("no conversation with id %q", args[0])
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(conv)
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one archived conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive, err := openArchive()
		if err != nil {
			return err
		}
		defer archive.Close()

		if err := archive.DeleteConversation(args[0]); err != nil {
			if errors.Is(err, history.ErrNotFound) {
				return fmt.Errorf("no conversation with id %q", args[0])
			}
			return err
		}
		printSuccess("Deleted conversation %s", args[0])
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- workspace ---

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspace documents",
}

var workspaceAddCmd = &cobra.Command{
	Use:   "add <file>...",
	Short: "Upload local files to the workspace corpus",
	Long: `Upload local files to the workspace corpus. PDF and HTML files are
converted to plain text before upload; anything else is uploaded as-is.

Examples:
  barrister workspace add contract.pdf
  barrister workspace add notes.md brief.html --concurrency 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		client, _, err := newResearchClient()
		if err != nil {
			return err
		}

		uploader := workspace.NewUploader(client, concurrency)
		results, err := uploader.UploadAll(cmd.Context(), args)
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				printError("%s: %v", r.Path, r.Err)
				continue
			}
			printSuccess("%s uploaded as %s", r.Path, r.ID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(results))
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

// describeAPIError keeps user-facing failures readable: the server's message
// when it sent one, the request id for support, and the raw error otherwise.
func describeAPIError(err error) error {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.UserMessage()
		if apiErr.RequestID != "" {
			msg += fmt.Sprintf(" (request %s)", apiErr.RequestID)
		}
		return errors.New(msg)
	}
	return err
}

func citationLines(cits []api.Citation) []citationLine {
	lines := make([]citationLine, len(cits))
	for i, c := range cits {
		lines[i] = citationLine{Title: c.Title, URL: c.URL}
	}
	return lines
}

func init() {
	askCmd.Flags().String("scope", string(api.ScopeBoth), "corpus scope: precedent, infobank, both, workspace")

	searchCmd.Flags().String("scope", string(api.ScopeBoth), "corpus scope: precedent, infobank, both, workspace")
	searchCmd.Flags().Int("limit", 10, "maximum number of results")

	feedbackCmd.Flags().Bool("helpful", true, "whether the answer was helpful")
	feedbackCmd.Flags().String("comment", "", "optional free-form comment")

	historyListCmd.Flags().Int("limit", 20, "maximum number of conversations to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)

	workspaceAddCmd.Flags().Int("concurrency", 4, "maximum concurrent uploads")
	workspaceCmd.AddCommand(workspaceAddCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/barrister-ai/barrister/internal/devserver"
	"github.com/barrister-ai/barrister/internal/history"
	"github.com/barrister-ai/barrister/internal/mcptools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve barrister tools over MCP (stdio transport)",
	Long: `Serve barrister tools over MCP so agent hosts can call legal_search,
legal_ask and add_document, and read the history://recent resource. The
transport is stdio; wire this command into the host's MCP server config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, cfg, err := newResearchClient()
		if err != nil {
			return err
		}

		deps := mcptools.Deps{Client: client}
		archive, err := history.Open(cfg.Storage.DataDir)
		if err != nil {
			slog.Warn("conversation archive unavailable", "error", err)
		} else {
			deps.Archive = archive
			defer archive.Close()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		stdioSrv := server.NewStdioServer(mcptools.NewServer(deps))
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

var devServerCmd = &cobra.Command{
	Use:   "dev-server",
	Short: "Run a local stub research server (foreground)",
	Long: `Run a local stub research server implementing the wire contract with
canned answers. Point barrister at it during development:

  barrister dev-server --addr 127.0.0.1:8787 --token dev
  BARRISTER_SERVER_BASE_URL=http://127.0.0.1:8787 BARRISTER_API_TOKEN=dev barrister ask "..."

Failure modes can be simulated with --degraded-sources and --rate-limit-every.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")
		domains, _ := cmd.Flags().GetStringSlice("allowed-domains")
		degraded, _ := cmd.Flags().GetStringSlice("degraded-sources")
		rateEvery, _ := cmd.Flags().GetInt("rate-limit-every")

		srv := devserver.New(devserver.Options{
			Token:           token,
			AllowedDomains:  domains,
			DegradedSources: degraded,
			RateLimitEvery:  rateEvery,
			Logger:          slog.Default(),
		})

		httpSrv := &http.Server{
			Addr:    addr,
			Handler: srv.Handler(),
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			fmt.Fprintf(os.Stderr, "dev server listening on %s (token %s)\n", addr, srv.Token())
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "shutting down...")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	},
}

func init() {
	devServerCmd.Flags().String("addr", "127.0.0.1:8787", "listen address")
	devServerCmd.Flags().String("token", "", "bearer token to accept (generated when empty)")
	devServerCmd.Flags().StringSlice("allowed-domains", nil, "email domains allowed to log in (empty allows all)")
	devServerCmd.Flags().StringSlice("degraded-sources", nil, "sources reported as failed on every search")
	devServerCmd.Flags().Int("rate-limit-every", 0, "fail every Nth chat request with 429")
}

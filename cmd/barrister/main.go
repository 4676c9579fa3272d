package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/barrister-ai/barrister/internal/config"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "barrister",
	Short: "Legal research from the terminal",
	Long: `barrister is a client for the legal research service: interactive
chat over the precedent and infobank corpora, direct search, workspace
document uploads, and a local conversation archive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if cfg, err := config.Load(); err == nil {
			level = cfg.Log.Level
		}
		configureLogging(level)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the barrister version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("barrister version %s\n", version)
	},
}

// configureLogging installs the default slog handler at the level named by
// the log.level config key. BARRISTER_LOG_LEVEL reaches here through the
// config env-override layer.
func configureLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(devServerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

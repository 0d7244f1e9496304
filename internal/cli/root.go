// Package cli provides the command-line interface for termchat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/termchat/internal/api"
	"github.com/raphaelgruber/termchat/internal/chat"
	"github.com/raphaelgruber/termchat/internal/config"
	"github.com/raphaelgruber/termchat/internal/conn"
	"github.com/raphaelgruber/termchat/internal/identity"
	"github.com/raphaelgruber/termchat/internal/metrics"
	"github.com/raphaelgruber/termchat/internal/tui"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config, loaded once per invocation
	cfg config.Config
)

// rootCmd starts the interactive chat when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "termchat",
	Short: "Terminal client for the chat backend",
	Long: `Termchat is a terminal client for the realtime chat backend.

It keeps a live websocket stream and the paginated message history
reconciled into one conversation, surviving disconnects with automatic
reconnection. Run without arguments to open the interactive chat.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
	},
	RunE: runChat,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(resetCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("interactive chat requires a terminal; use 'termchat send' for scripted use")
	}

	// The TUI owns the terminal, so logs go to file only.
	logger, cleanup := config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	clientID, err := identity.NewProvider(cfg.DataDir).ClientID()
	if err != nil {
		return fmt.Errorf("client identity: %w", err)
	}

	logger.Info("termchat starting",
		"version", Version,
		"client_id", clientID,
		"api_url", cfg.APIURL,
		"ws_url", cfg.WSURL,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats := metrics.NewCollector()
	fetcher := api.New(cfg.APIURL, cfg.HTTPTimeout)
	live := conn.New(cfg.WSURL, clientID, logger)

	session := chat.NewSession(clientID, fetcher, live, logger, stats,
		chat.WithPageSize(cfg.PageSize))

	// History loading and the live connection come up independently.
	live.Start(ctx)
	session.Start(ctx)

	uiErr := tui.Run(session)
	session.Close()

	logger.Info("session finished", stats.Snapshot().LogArgs()...)
	return uiErr
}

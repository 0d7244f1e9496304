package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/termchat/internal/api"
	"github.com/raphaelgruber/termchat/internal/config"
	"github.com/raphaelgruber/termchat/internal/identity"
)

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message over REST and print the reply",
	Long: `Send a single message without opening the interactive chat.

Uses the REST fallback instead of the websocket, so it works from scripts
and pipes. The reply is printed to stdout.

Examples:
  termchat send "hello"
  termchat send "remind me what we discussed yesterday"`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()

	clientID, err := identity.NewProvider(cfg.DataDir).ClientID()
	if err != nil {
		return fmt.Errorf("client identity: %w", err)
	}

	client := api.New(cfg.APIURL, cfg.HTTPTimeout)

	// First contact seeds the onboarding message server-side; show it so a
	// scripted first run matches what the interactive chat would display.
	initial, err := client.Initialize(ctx, clientID)
	if err != nil {
		return err
	}
	if initial != nil {
		fmt.Println(initial.Content)
		fmt.Println()
	}

	reply, err := client.Send(ctx, clientID, args[0])
	if err != nil {
		return err
	}

	logger.Debug("message sent", "reply_id", reply.ID)
	fmt.Println(reply.Content)
	return nil
}

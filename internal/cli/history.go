package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/termchat/internal/api"
	"github.com/raphaelgruber/termchat/internal/identity"
	"github.com/raphaelgruber/termchat/internal/models"
)

var (
	historyPage  int
	historyStats bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print a page of conversation history",
	Long: `Print one page of the stored conversation without connecting the
live socket. Page 1 is the most recent history; higher pages are older.

Examples:
  termchat history
  termchat history --page 3
  termchat history --stats`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyPage, "page", "p", 1, "history page (1 = most recent)")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "show fetch timing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	clientID, err := identity.NewProvider(cfg.DataDir).ClientID()
	if err != nil {
		return fmt.Errorf("client identity: %w", err)
	}

	client := api.New(cfg.APIURL, cfg.HTTPTimeout)

	start := time.Now()
	page, err := client.Messages(ctx, clientID, historyPage, cfg.PageSize)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if len(page.Messages) == 0 {
		fmt.Println("No messages on this page.")
	}

	for _, msg := range page.Messages {
		sender := "assistant"
		if msg.Role == models.RoleUser {
			sender = "you"
		}
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("2006-01-02 15:04"), sender, msg.Content)
	}

	if page.HasMore {
		fmt.Printf("\nOlder messages available: termchat history --page %d\n", historyPage+1)
	}

	if historyStats {
		fmt.Printf("\nPage %d of %d total messages, fetched in %dms\n",
			historyPage, page.Total, elapsed.Milliseconds())
	}

	return nil
}

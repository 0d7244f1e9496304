package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/termchat/internal/identity"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the stored client identity",
	Long: `Remove the persisted client id. The next run generates a fresh
identity, which means the server starts a brand-new conversation - the old
history stays on the server but is no longer reachable from this machine.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := identity.NewProvider(cfg.DataDir).Reset(); err != nil {
		return fmt.Errorf("reset identity: %w", err)
	}
	fmt.Println("Client identity cleared. A new one will be generated on next run.")
	return nil
}

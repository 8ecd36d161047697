package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Stay resident: cron trigger, config hot reload and Telegram commands",
	Long: `Runs until interrupted. Regular runs start on scheduler.cron, profile
edits apply without a restart, and owners can drive the scheduler from
Telegram when telegram.enabled is set. Notifies systemd when ready.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return a.Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

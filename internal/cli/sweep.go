package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire overdue invoices once",
		Long: `Move every PENDING or PROCESSING invoice whose due date has passed to
EXPIRED, then purge expired sign-in challenges. Suitable for cron when the
watcher is not running.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts.Logger())
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd)
			defer stop()

			expired, err := a.sweeper.Sweep(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "expiry sweep failed", err)
			}
			challenges, err := a.authn.SweepExpired(ctx)
			if err != nil {
				return WrapExitError(ExitFailure, "challenge sweep failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d invoices, purged %d challenges\n", expired, challenges)
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Once bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the ledger watcher without the HTTP API",
		Long: `Poll the ledger for payments to invoices awaiting settlement.

Every tick sweeps overdue invoices to EXPIRED first, then reads recent
transactions per payee. Several watchers may share one database; the
settlement writer records each transaction hash once.

Example:
  link2pay watch
  link2pay watch --once --log-format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single tick and print its report")
	return cmd
}

func runWatch(cmd *cobra.Command, opts *WatchOptions) error {
	a, err := newApp(opts.Logger())
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	if opts.Once {
		report, err := a.scanner.Tick(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "watcher tick failed", err)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	}

	a.scanner.Run(ctx)
	return nil
}

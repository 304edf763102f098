package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/link2pay/link2pay/apps/api/internal/store"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the database schema and print its version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := store.LoadConfig()
			st, err := cfg.Open()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			version, err := st.SchemaVersion(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read schema version", err)
			}
			rootOpts.Logger().Debug("schema applied", "driver", st.Driver())
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", version, st.Driver())
			return nil
		},
	}
}

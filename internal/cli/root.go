package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/link2pay/link2pay/apps/api/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	LogFormat  string // "text" | "json"
	ConfigFile string
	EnvFiles   []string

	logger *slog.Logger
}

// ValidLogFormats defines the allowed log formats.
var ValidLogFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the link2pay API binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "link2pay",
		Short: "link2pay settlement API",
		Long: `Invoices and payment links settled on the Stellar ledger.

Configuration is read from the environment. A .env file and an optional
YAML file of ENV_NAME: value pairs fill in anything not already set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidLogFormats, opts.LogFormat) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid log format %q: must be one of %v", opts.LogFormat, ValidLogFormats))
			}
			if err := config.LoadDotenv(opts.EnvFiles...); err != nil {
				return WrapExitError(ExitCommandError, "failed to load env file", err)
			}
			if opts.ConfigFile != "" {
				if _, err := config.ApplyFile(opts.ConfigFile); err != nil {
					return WrapExitError(ExitCommandError, "failed to load config file", err)
				}
			}
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.LogFormat, opts.Verbose)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML file of environment defaults")
	cmd.PersistentFlags().StringSliceVar(&opts.EnvFiles, "env-file", nil, "dotenv files to load (default .env)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// Logger returns the logger configured by the root command.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.Default()
	}
	return o.logger
}

func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

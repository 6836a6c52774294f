// Package cli implements the cardsync command line.
package cli

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mrlokans/cardsync/internal/config"
	"github.com/mrlokans/cardsync/internal/entrypoint"
	"github.com/mrlokans/cardsync/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Version string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Running it without a subcommand
// starts the server.
func NewRootCommand(version string) *cobra.Command {
	opts := &RootOptions{Version: version}

	cmd := &cobra.Command{
		Use:     "cardsync",
		Short:   "Synchronize remote CMDB tables with local cards",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewPreviewCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewStagedCommand(opts))
	cmd.AddCommand(NewTestConnectionCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewFieldsCommand(opts))
	cmd.AddCommand(NewApplyConfigCommand(opts))
	cmd.AddCommand(NewGenerateSecretCommand(opts))

	return cmd
}

// setup loads configuration from the environment and installs the logger.
func (o *RootOptions) setup() (*config.Config, *slog.Logger) {
	cfg := config.NewConfig()
	level := cfg.Logging.Level
	if o.Verbose {
		level = "debug"
	}
	return cfg, logging.Setup(level, cfg.Logging.JSON)
}

// openApp builds the sync service for one-shot commands.
func (o *RootOptions) openApp() (*entrypoint.App, error) {
	cfg, logger := o.setup()
	app, err := entrypoint.NewApp(cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to initialize", err)
	}
	return app, nil
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

func parseID(arg, what string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil || id == 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s id %q", what, arg))
	}
	return uint(id), nil
}

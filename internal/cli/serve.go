package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/cardsync/internal/entrypoint"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the scheduler and task workers",
		Long: `Run the HTTP API server.

Configuration comes from the environment (PORT, DATABASE_PATH, SECRET_KEY,
SYNC_SCHEDULER_ENABLED, TASKS_ENABLED, LOG_LEVEL, ...). The server stops
gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts)
		},
	}
}

func runServe(opts *RootOptions) error {
	cfg, logger := opts.setup()
	return entrypoint.Run(cfg, logger, opts.Version)
}

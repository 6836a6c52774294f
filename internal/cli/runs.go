package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/entities"
)

func NewRunsCommand(opts *RootOptions) *cobra.Command {
	var (
		mappingID uint
		status    string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List sync runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			list, total, err := app.Sync.ListRuns(cmd.Context(), runs.ListFilter{
				MappingID: mappingID,
				Status:    entities.SyncStatus(status),
				Limit:     limit,
			})
			if err != nil {
				return serviceError("failed to list runs", err)
			}

			data := struct {
				Runs  []entities.SyncRun `json:"runs"`
				Total int64              `json:"total"`
			}{Runs: list, Total: total}

			return opts.output(cmd).Print(data, func(w io.Writer) {
				fmt.Fprintln(w, "ID\tMAPPING\tDIRECTION\tSTATUS\tSTARTED\tERROR")
				for _, r := range list {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n", r.ID, r.MappingID, r.Direction, r.Status, r.StartedAt.Format(time.RFC3339), r.ErrorMessage)
				}
				fmt.Fprintf(w, "%d of %d runs\n", len(list), total)
			})
		},
	}

	cmd.Flags().UintVar(&mappingID, "mapping", 0, "only runs of this mapping")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status (running|completed|failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func NewStagedCommand(opts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "staged <run-id>",
		Short: "List the staged records of a pull run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "run")
			if err != nil {
				return err
			}
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.Sync.ListStaged(cmd.Context(), id, entities.StagedStatus(status))
			if err != nil {
				return serviceError("failed to list staged records", err)
			}
			return opts.output(cmd).Print(records, func(w io.Writer) { printStaged(w, records) })
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only records with this status (pending|applied|error)")
	return cmd
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mrlokans/cardsync/internal/database/connections"
	"github.com/mrlokans/cardsync/internal/database/mappings"
	"github.com/mrlokans/cardsync/internal/database/runs"
	"github.com/mrlokans/cardsync/internal/entities"
	"github.com/mrlokans/cardsync/internal/services"
	"github.com/mrlokans/cardsync/internal/syncengine"
)

// serviceError maps sync service errors to exit codes.
func serviceError(message string, err error) error {
	switch {
	case errors.Is(err, connections.ErrConnectionNotFound),
		errors.Is(err, mappings.ErrNotFound),
		errors.Is(err, runs.ErrNotFound),
		errors.Is(err, services.ErrRunActive),
		errors.Is(err, syncengine.ErrRunInProgress),
		errors.Is(err, syncengine.ErrMappingInactive),
		errors.Is(err, syncengine.ErrConnectionInactive),
		errors.Is(err, syncengine.ErrDirectionNotAllowed),
		errors.Is(err, syncengine.ErrNotPullRun):
		return WrapExitError(ExitCommandError, message, err)
	default:
		return WrapExitError(ExitFailure, message, err)
	}
}

func NewPullCommand(opts *RootOptions) *cobra.Command {
	var autoApply bool

	cmd := &cobra.Command{
		Use:   "pull <mapping-id>",
		Short: "Fetch a mapping's remote table and stage the proposed changes",
		Long: `Fetch every record of the mapping's remote table and resolve it to a card.

Proposed creates, updates and deletions are staged for review unless the
mapping skips staging or --auto-apply is given.

Example:
  cardsync pull 3
  cardsync pull 3 --auto-apply --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mapping")
			if err != nil {
				return err
			}
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Sync.Pull(cmd.Context(), id, autoApply)
			if result == nil || result.Run == nil {
				return serviceError("pull failed", err)
			}
			if printErr := opts.output(cmd).Print(result, func(w io.Writer) {
				printRun(w, result.Run)
				if result.Applied != nil {
					printSummary(w, result.Applied)
				}
			}); printErr != nil {
				return printErr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "pull failed", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApply, "auto-apply", false, "apply staged records right after the pull")
	return cmd
}

func NewPushCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push <mapping-id>",
		Short: "Write local_leads fields of the mapping's cards to the remote table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mapping")
			if err != nil {
				return err
			}
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			run, err := app.Sync.Push(cmd.Context(), id)
			if run == nil {
				return serviceError("push failed", err)
			}
			if printErr := opts.output(cmd).Print(run, func(w io.Writer) { printRun(w, run) }); printErr != nil {
				return printErr
			}
			if err != nil {
				return WrapExitError(ExitFailure, "push failed", err)
			}
			return nil
		},
	}
}

func NewApplyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <run-id>",
		Short: "Apply the pending staged records of a pull run",
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

			summary, err := app.Sync.ApplyRun(cmd.Context(), id)
			if err != nil {
				return serviceError("apply failed", err)
			}
			return opts.output(cmd).Print(summary, func(w io.Writer) { printSummary(w, summary) })
		},
	}
}

func NewPreviewCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "preview <mapping-id>",
		Short: "Show what a pull would stage for the first records, writing nothing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "mapping")
			if err != nil {
				return err
			}
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			records, err := app.Sync.Preview(cmd.Context(), id, limit)
			if err != nil {
				return serviceError("preview failed", err)
			}
			return opts.output(cmd).Print(records, func(w io.Writer) { printStaged(w, records) })
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of remote records to preview")
	return cmd
}

func printRun(w io.Writer, run *entities.SyncRun) {
	fmt.Fprintf(w, "run\t%d\n", run.ID)
	fmt.Fprintf(w, "mapping\t%d\n", run.MappingID)
	fmt.Fprintf(w, "direction\t%s\n", run.Direction)
	fmt.Fprintf(w, "status\t%s\n", run.Status)

	stats := run.Stats.Data()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, stats[k])
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(w, "error\t%s\n", run.ErrorMessage)
	}
}

func printSummary(w io.Writer, s *syncengine.ApplySummary) {
	fmt.Fprintf(w, "created\t%d\n", s.Created)
	fmt.Fprintf(w, "updated\t%d\n", s.Updated)
	fmt.Fprintf(w, "deleted\t%d\n", s.Deleted)
	fmt.Fprintf(w, "skipped\t%d\n", s.Skipped)
	fmt.Fprintf(w, "errors\t%d\n", s.Errors)
}

func printStaged(w io.Writer, records []entities.StagedRecord) {
	fmt.Fprintln(w, "ID\tREMOTE\tACTION\tSTATUS\tCARD\tCHANGES")
	for _, r := range records {
		card := "-"
		if r.LocalEntityID != nil {
			card = *r.LocalEntityID
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n", r.ID, r.RemoteRecordID, r.Action, r.Status, card, len(r.Diff.Data()))
	}
}

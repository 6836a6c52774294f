package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewTestConnectionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection <connection-id>",
		Short: "Check that a connection's credentials are accepted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "connection")
			if err != nil {
				return err
			}
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := app.Sync.TestConnection(cmd.Context(), id)
			if err != nil {
				return serviceError("connection test failed", err)
			}
			if err := opts.output(cmd).Print(result, func(w io.Writer) {
				fmt.Fprintf(w, "ok\t%t\nmessage\t%s\n", result.OK, result.Message)
			}); err != nil {
				return err
			}
			if !result.OK {
				return NewExitError(ExitFailure, result.Message)
			}
			return nil
		},
	}
}

func NewTablesCommand(opts *RootOptions) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "tables <connection-id>",
		Short: "List tables of the remote instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "connection")
			if err != nil {
				return err
			}
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			tables, err := app.Sync.ListTables(cmd.Context(), id, search)
			if err != nil {
				return serviceError("failed to list tables", err)
			}
			return opts.output(cmd).Print(tables, func(w io.Writer) {
				fmt.Fprintln(w, "NAME\tLABEL")
				for _, t := range tables {
					fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Label)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by name or label")
	return cmd
}

func NewFieldsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fields <connection-id> <table>",
		Short: "List the columns of a remote table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "connection")
			if err != nil {
				return err
			}
			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			fields, err := app.Sync.ListTableFields(cmd.Context(), id, args[1])
			if err != nil {
				return serviceError("failed to list fields", err)
			}
			return opts.output(cmd).Print(fields, func(w io.Writer) {
				fmt.Fprintln(w, "NAME\tLABEL\tTYPE")
				for _, f := range fields {
					fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, f.Label, f.Type)
				}
			})
		},
	}
}

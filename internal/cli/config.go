package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrlokans/cardsync/internal/crypto"
	"github.com/mrlokans/cardsync/internal/mappingfile"
)

func NewApplyConfigCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply-config",
		Short: "Create or update a connection and its mappings from a YAML file",
		Long: `Create or update a connection and its mappings from a YAML file.

The connection is matched by name, mappings by connection and name. Credential
values may reference environment variables (${REMOTE_PASSWORD}); they are
encrypted with SECRET_KEY before they are stored.

Example:
  cardsync apply-config -f prod.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := mappingfile.Load(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid mapping file", err)
			}

			app, err := opts.openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := mappingfile.Apply(cmd.Context(), app.DB.DB, app.Codec, doc)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to apply mapping file", err)
			}

			return opts.output(cmd).Print(result, func(w io.Writer) {
				verb := "updated"
				if result.ConnectionCreated {
					verb = "created"
				}
				fmt.Fprintf(w, "connection\t%d (%s)\n", result.ConnectionID, verb)
				if len(result.MappingsCreated) > 0 {
					fmt.Fprintf(w, "mappings created\t%s\n", strings.Join(result.MappingsCreated, ", "))
				}
				if len(result.MappingsUpdated) > 0 {
					fmt.Fprintf(w, "mappings updated\t%s\n", strings.Join(result.MappingsUpdated, ", "))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "path to the mapping file (required)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func NewGenerateSecretCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-secret",
		Short: "Print a random value suitable for SECRET_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := crypto.GenerateSecret()
			if err != nil {
				return err
			}
			return opts.output(cmd).Print(map[string]string{"secret_key": secret}, func(w io.Writer) {
				fmt.Fprintln(w, secret)
			})
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func (a *app) hubCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Browse the domain hub",
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Show hub status and version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			out, err := client.Hub().HealthWithContext(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer().print(out, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "status: %s\nversion: %s\n", out.Status, out.Version)
				return err
			})
		},
	}

	domains := &cobra.Command{
		Use:   "domains",
		Short: "List the domains the hub serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			names, err := client.Hub().ListDomainsWithContext(cmd.Context())
			if err != nil {
				return err
			}
			return a.printer().print(names, func(w io.Writer) error {
				for _, n := range names {
					fmt.Fprintln(w, n)
				}
				return nil
			})
		},
	}

	schema := &cobra.Command{
		Use:   "schema <domain>",
		Short: "Print the JSON schema registered for a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			out, err := client.Hub().GetSchemaWithContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer().print(out, func(w io.Writer) error {
				body, err := json.MarshalIndent(out.JSONSchema, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(w, "# %s (version %s, hash %s)\n%s\n", args[0], out.SchemaVersion, out.SchemaHash, body)
				return err
			})
		},
	}

	cmd.AddCommand(info, domains, schema)
	return cmd
}

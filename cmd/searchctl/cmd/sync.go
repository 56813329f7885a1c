package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/utafrali/storefront-search/internal/domain"
)

func newSyncCmd(opts *globalOptions) *cobra.Command {
	var resource string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Start and inspect indexing runs",
	}
	cmd.PersistentFlags().StringVar(&resource, "resource", domain.ResourceProducts, "Resource to sync")

	run := &cobra.Command{
		Use:   "run",
		Short: "Sync the tenant's index with the product service",
		Long: `Start an incremental sync from the stored checkpoint.

Without --wait the run is queued and the command returns at once. With
--wait it runs to completion and prints the result; a run held by another
instance is reported as a conflict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			wait, _ := cmd.Flags().GetBool("wait")
			if !wait {
				var out struct {
					Queued bool `json:"queued"`
				}
				if err := c.do(cmd.Context(), http.MethodPost, "/sync/"+resource, nil, &out); err != nil {
					return err
				}
				if out.Queued {
					fmt.Fprintln(cmd.OutOrStdout(), "sync queued")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "sync already pending")
				}
				return nil
			}

			var res domain.RunResult
			if err := c.do(cmd.Context(), http.MethodPost, "/sync/"+resource+"?wait=true", nil, &res); err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	run.Flags().Bool("wait", false, "Run inline and print the result")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show run state and checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var st domain.SyncStatus
			if err := c.do(cmd.Context(), http.MethodGet, "/sync/"+resource, nil, &st); err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}

	cmd.AddCommand(run, status)
	return cmd
}

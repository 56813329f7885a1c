package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached search results",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop every cached result of the tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var out struct {
				Removed int `json:"removed"`
			}
			if err := c.do(cmd.Context(), http.MethodDelete, "/cache", nil, &out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", out.Removed)
			return nil
		},
	})
	return cmd
}

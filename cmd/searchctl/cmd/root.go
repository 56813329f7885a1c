// Package cmd provides the searchctl commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	server  string
	tenant  string
	timeout time.Duration
}

// NewRootCmd creates the root command for the searchctl CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "searchctl",
		Short: "Operate the storefront search service",
		Long: `searchctl talks to the admin API of a running search service.

It publishes tenant filter configurations from YAML files, starts and
inspects indexing runs, and purges cached results. The migrate command
connects to PostgreSQL directly using the service's environment.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8010", "Search service base URL")
	cmd.PersistentFlags().StringVar(&opts.tenant, "tenant", "", "Tenant (shop) id")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Request timeout")

	cmd.AddCommand(newFiltersCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newCacheCmd(opts))
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func (o *globalOptions) client() (*adminClient, error) {
	if o.tenant == "" {
		return nil, fmt.Errorf("--tenant is required")
	}
	return newAdminClient(o.server, o.tenant, o.timeout), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

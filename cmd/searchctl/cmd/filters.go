package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/utafrali/storefront-search/internal/domain"
)

// filterFile is the YAML layout accepted by "filters apply".
type filterFile struct {
	Facets []domain.Facet `yaml:"facets" json:"facets"`
}

func newFiltersCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filters",
		Short: "Manage tenant filter configurations",
	}
	cmd.AddCommand(newFiltersGetCmd(opts), newFiltersApplyCmd(opts), newFiltersHistoryCmd(opts))
	return cmd
}

func newFiltersGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the active filter configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var cfg domain.FilterConfig
			if err := c.do(cmd.Context(), http.MethodGet, "/filter-config", nil, &cfg); err != nil {
				return err
			}
			return printJSON(cmd, cfg)
		},
	}
}

func newFiltersApplyCmd(opts *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Publish a filter configuration from a YAML file",
		Long: `Publish the facets of a YAML file as the tenant's next filter
configuration version. The previous version stops being served at once.

Example file:

  facets:
    - handle: color
      label: Colour
      field_path: attributes.color
      display_type: swatch
      enabled: true
      order: 1
      swatch:
        limit: 12
        colors:
          red: "#ff0000"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ff, err := readFilterFile(file)
			if err != nil {
				return err
			}
			var cfg domain.FilterConfig
			if err := c.do(cmd.Context(), http.MethodPut, "/filter-config", ff, &cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published version %d for %s (%d facets)\n", cfg.Version, cfg.Tenant, len(cfg.Facets))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with the facets to publish")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newFiltersHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List filter configuration versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			var out struct {
				Versions []domain.FilterConfig `json:"versions"`
			}
			path := "/filter-config/history?limit=" + strconv.Itoa(limit)
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			for _, v := range out.Versions {
				active := ""
				if v.IsActive {
					active = " (active)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "v%d  %s  %d facets%s\n",
					v.Version, v.CreatedAt.Format("2006-01-02 15:04:05"), len(v.Facets), active)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of versions")
	return cmd
}

func readFilterFile(path string) (*filterFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var ff filterFile
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(ff.Facets) == 0 {
		return nil, fmt.Errorf("%s: no facets defined", path)
	}
	return &ff, nil
}

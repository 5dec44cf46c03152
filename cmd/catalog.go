package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/lehigh-university-libraries/furnisher/internal/config"
	"github.com/spf13/cobra"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse furniture catalogs",
	}
	cmd.AddCommand(newCatalogCategoriesCmd(opts))
	cmd.AddCommand(newCatalogBrowseCmd(opts))
	return cmd
}

func newCatalogCategoriesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the configured catalog categories",
		Long: `Lists the categories from the YAML file named by FURNISHER_CATEGORIES.

The file is a list of entries with a name and a listing url:

  - name: Chairs
    url: https://shop.example/cat/chairs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := opts.cfg.Categories()
			if err != nil {
				return err
			}
			if len(cats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No categories configured (set FURNISHER_CATEGORIES)")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tURL")
			for _, c := range cats {
				fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.URL)
			}
			return tw.Flush()
		},
	}
}

func newCatalogBrowseCmd(opts *rootOptions) *cobra.Command {
	var maxItems int

	cmd := &cobra.Command{
		Use:   "browse <url|category>",
		Short: "Acquire the 3D models listed in a catalog",
		Long: `Scans a catalog listing page by page, downloads the glTF binary of every item
that has one, and caches it. A catalog that was fully acquired before is served
from the cache without any network access.`,
		Example: `  # Browse a listing by url
  furnisher catalog browse "https://shop.example/cat/chairs"

  # Browse a configured category, stopping after 5 items
  furnisher catalog browse Chairs --max 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := opts.cfg.Categories()
			if err != nil {
				return err
			}
			catalogURL, err := config.ResolveCategory(cats, args[0])
			if err != nil {
				return err
			}

			a, err := newApp(opts.cfg, maxItems)
			if err != nil {
				return err
			}
			defer a.Close()

			req, err := a.service.Request(cmd.Context(), catalogURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			source := "network"
			if req.FromCache {
				source = "cache"
			}
			fmt.Fprintf(out, "Request %s (%s, complete=%t)\n", req.ID, source, req.Complete)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLOT\tITEM\tNODES")
			for _, p := range a.console.Presented() {
				fmt.Fprintf(tw, "%d\t%s\t%d\n", p.Slot, p.ItemName, p.Nodes)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if missing := len(req.ItemNames) - len(req.Resolved); missing > 0 {
				fmt.Fprintf(out, "%d item(s) could not be loaded\n", missing)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxItems, "max", 0, "Maximum number of items to acquire (defaults to FURNISHER_MAX_ITEMS)")

	return cmd
}

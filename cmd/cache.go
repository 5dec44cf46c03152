package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the model cache",
	}
	cmd.AddCommand(newCacheShowCmd(opts))
	cmd.AddCommand(newCacheClearCmd(opts))
	cmd.AddCommand(newCacheExportCmd(opts))
	return cmd
}

func newCacheShowCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List every cached catalog item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			entries := a.cache.Entries()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATALOG\t#\tITEM\tCOMPLETE\tBLOB")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%t\t%t\n", e.CatalogURL, e.Position, e.ItemName, e.Complete, e.Cached)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")

	return cmd
}

func newCacheClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached model and the cache index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.service.ClearCache(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", opts.cfg.CacheDir)
			return nil
		},
	}
}

func newCacheExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "export <file.parquet>",
		Short:   "Export the cache index as a parquet file",
		Example: `  furnisher cache export cache.parquet`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.cache.ExportParquet(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s\n", n, args[0])
			return nil
		},
	}
}

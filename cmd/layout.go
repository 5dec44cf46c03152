package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/lehigh-university-libraries/furnisher/internal/catalog"
	"github.com/lehigh-university-libraries/furnisher/internal/models"
	"github.com/spf13/cobra"
)

func newLayoutCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Save, inspect and restore room layouts",
	}
	cmd.AddCommand(newLayoutListCmd(opts))
	cmd.AddCommand(newLayoutShowCmd(opts))
	cmd.AddCommand(newLayoutPlaceCmd(opts))
	cmd.AddCommand(newLayoutLoadCmd(opts))
	return cmd
}

func newLayoutListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.manager.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func newLayoutShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Print a saved layout as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			l, err := a.layouts.Load(args[0])
			if err != nil {
				return err
			}
			if l == nil {
				return fmt.Errorf("no layout named %q", args[0])
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(l)
		},
	}
}

func newLayoutPlaceCmd(opts *rootOptions) *cobra.Command {
	var sourceURL string
	var position []float64
	var scale float64

	cmd := &cobra.Command{
		Use:   "place <layout> <item>",
		Short: "Anchor an item in a layout and save it",
		Long: `Creates a new spatial anchor at --position, records the item against it and
saves the layout, keeping any items the layout already had.`,
		Example: `  furnisher layout place office "MALM Desk" --position 1,0,-2 \
    --source "https://shop.example/p/malm-desk"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, item := args[0], catalog.SanitizeName(args[1])
			if len(position) != 3 {
				return fmt.Errorf("--position needs three values, got %d", len(position))
			}

			a, err := newApp(opts.cfg, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			existing, err := a.layouts.Load(name)
			if err != nil {
				return err
			}
			if existing != nil {
				for _, rec := range existing.Furniture {
					a.manager.Register(rec)
				}
			}

			pose := models.Pose{
				Position: models.Vector3{X: position[0], Y: position[1], Z: position[2]},
				Rotation: models.IdentityRotation,
			}
			anchor, err := a.anchors.Create(cmd.Context(), item, pose)
			if err != nil {
				return fmt.Errorf("failed to create anchor: %w", err)
			}

			a.manager.Register(models.PlacedItemRecord{
				ItemID:           item,
				SpatialAnchorID:  anchor.ID.String(),
				RelativeRotation: models.IdentityRotation,
				Scale:            models.Vector3{X: scale, Y: scale, Z: scale},
				SourceURL:        sourceURL,
			})
			err = a.manager.SaveCurrent(name)
			fmt.Fprintln(cmd.OutOrStdout(), a.manager.Status())
			return err
		},
	}

	cmd.Flags().StringVar(&sourceURL, "source", "", "Item detail page, used to download the model on load")
	cmd.Flags().Float64SliceVar(&position, "position", []float64{0, 0, 0}, "Anchor position as x,y,z")
	cmd.Flags().Float64Var(&scale, "scale", 1, "Uniform scale")

	return cmd
}

func newLayoutLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load <name>",
		Short: "Restore a saved layout, acquiring models as needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, 0)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.manager.Load(cmd.Context(), args[0])
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, a.manager.Status())
			if err != nil {
				return err
			}
			if !report.Found {
				return nil
			}

			fmt.Fprintf(out, "%d record(s): %d restored, %d skipped, %d waiting for a model\n",
				report.Records, report.Queued, report.Skipped, report.Waiting)
			for _, inst := range a.console.Spawned() {
				fmt.Fprintf(out, "  %s on %s\n", inst.ItemName, inst.AnchorID)
			}
			return nil
		},
	}
}

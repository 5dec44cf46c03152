package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/lehigh-university-libraries/furnisher/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions is filled in before any subcommand runs
type rootOptions struct {
	verbose bool
	cfg     *config.Config
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "furnisher",
		Short: "Furniture model acquisition and room layout tool",
		Long: `Furnisher discovers furniture with 3D models in online catalogs, downloads and
caches their glTF binaries, and saves and restores room layouts anchored to
spatial anchors.

Configuration is read from FURNISHER_* environment variables and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			opts.cfg = cfg

			level := cfg.LogLevel
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	// Add subcommands
	cmd.AddCommand(newCatalogCmd(opts))
	cmd.AddCommand(newCacheCmd(opts))
	cmd.AddCommand(newLayoutCmd(opts))
	cmd.AddCommand(newServeCmd(opts))

	return cmd
}

package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "catalogd",
		Short: "Paginated dataset catalog service",
		Long: `catalogd serves a catalog of datasets from a search backend as
paginated DCAT documents.

Example usage:
  catalogd serve                          # Start the HTTP server
  catalogd page --page 2 --format jsonld  # Print one catalog page
  catalogd actions                        # List catalog actions
  catalogd seed datasets.json             # Load records into the backend`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(opts.envFile)
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ./catalog.yaml or /etc/catalog/catalog.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file to load before reading the configuration (default .env if present)")

	root.AddCommand(
		newServeCmd(opts),
		newPageCmd(opts),
		newActionsCmd(opts),
		newActionCmd(opts),
		newSeedCmd(opts),
	)
	return root
}

// loadEnv loads path, or .env when it exists.
func loadEnv(path string) error {
	if path != "" {
		return godotenv.Load(path)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

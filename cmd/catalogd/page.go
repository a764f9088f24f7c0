package main

import (
	"github.com/spf13/cobra"

	"github.com/hadi77ir/go-catalog/catalog"
)

func newPageCmd(opts *rootOptions) *cobra.Command {
	var raw catalog.RawRequest

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Print one catalog page",
		Long: `Print one catalog page in the requested format.

Examples:
  catalogd page                                   # First page, default format
  catalogd page --page 3 --format jsonld          # Third page as JSON-LD
  catalogd page --modified-since 2024-01-01       # Datasets changed since a date`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			body, _, err := a.assembler.ShowCatalog(cmd.Context(), raw)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(body)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&raw.Page, "page", "", "page number, starting at 1")
	flags.StringVar(&raw.ModifiedSince, "modified-since", "", "only datasets modified since this ISO-8601 date")
	flags.StringVar(&raw.Format, "format", "", "output format (xml, rdf, json, jsonld, cbor)")
	flags.StringVar(&raw.Text, "q", "", "free-text query")
	flags.StringVar(&raw.Filter, "fq", "", "filter query, e.g. tags:water")
	flags.StringVar(&raw.Sort, "sort", "", "sort clause, e.g. \"title asc\"")
	flags.StringVar(&raw.PerPage, "per-page", "", "page size override, when enabled")
	return cmd
}

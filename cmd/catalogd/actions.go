package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hadi77ir/go-catalog/catalog"
)

func newActionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the catalog actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts.configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, name := range a.actions.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newActionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "action NAME [key=value ...]",
		Short: "Run one catalog action",
		Long: `Run one catalog action with request parameters given as key=value pairs.

Examples:
  catalogd action dcat_datasets_list page=2
  catalogd action dcat_dataset_show id=air-quality format=jsonld`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseParams(args[1:])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			action, ok := a.actions.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown action %q, expected one of %s", args[0], strings.Join(a.actions.Names(), ", "))
			}
			out, err := action(cmd.Context(), catalog.RequestFromQuery(values))
			if err != nil {
				return err
			}

			if rendered, ok := out.(*catalog.Rendered); ok {
				_, err = cmd.OutOrStdout().Write(rendered.Body)
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func parseParams(args []string) (url.Values, error) {
	values := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", arg)
		}
		values.Set(key, value)
	}
	return values, nil
}

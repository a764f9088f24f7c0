package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hadi77ir/go-catalog/executors/memory"
)

func newSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE",
		Short: "Load records from a JSON file into the search backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := memory.LoadFile(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.store.Current().Search.Backend == "memory" {
				return errors.New("the memory backend is not persistent, set search.memory.seed_file instead")
			}
			if err := a.backend.Seed(cmd.Context(), records); err != nil {
				return fmt.Errorf("seed %s: %w", a.backend.Name(), err)
			}

			a.logger.Info("records seeded",
				zap.String("backend", a.backend.Name()),
				zap.Int("records", len(records)))
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d records into %s\n", len(records), a.backend.Name())
			return nil
		},
	}
}

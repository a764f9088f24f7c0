package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hadi77ir/go-catalog/config"
	"github.com/hadi77ir/go-catalog/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts.configFile)
			if err != nil {
				return err
			}
			defer a.Close()

			if watch && a.loader.Path() != "" {
				a.store.OnChange(func(cfg *config.Config) {
					a.logger.Debug("catalog settings updated",
						zap.Int("datasets_per_page", cfg.Catalog.DatasetsPerPage),
						zap.Bool("allow_per_page_override", cfg.Catalog.AllowPerPageOverride))
				})
				a.store.Watch(a.loader)
			}

			srv := server.New(a.assembler.Endpoint(), a.actions,
				server.WithLogger(a.logger),
				server.WithMetrics(a.metrics),
				server.WithHealth(a.health))
			return srv.Run(ctx, a.store.Current().HTTP)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "reload page size and timeout settings when the config file changes")
	return cmd
}

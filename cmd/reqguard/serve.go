/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acronis/go-reqguard/internal/app"
	"github.com/acronis/go-reqguard/internal/libinfo"
	"github.com/acronis/go-reqguard/log"
	"github.com/acronis/go-reqguard/service"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}

			logger, closeLogger := log.NewLogger(cfg.Log)
			defer closeLogger()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			application, err := app.New(ctx, cfg, logger, app.Opts{})
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}

			logger.Info("starting reqguard",
				log.String("version", libinfo.GetLibVersion()),
				log.String("address", cfg.Server.Address),
				log.String("rate_limit_store", string(cfg.RateLimit.Store.Type)),
			)
			return service.New(logger, application).StartContext(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	return cmd
}

package main

import (
	"github.com/navillasa/litellm-eks-stack/internal/status"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Observe the deployed stack",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /health and /metrics for the deployed endpoints",
		Long: `Runs a small HTTP server that periodically probes the deployed stack's
health endpoints and exposes the results as JSON on /health and as
Prometheus metrics on /metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			return status.NewServer(cfg).Start(ctx)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	cmd.AddCommand(serveCmd)

	return cmd
}

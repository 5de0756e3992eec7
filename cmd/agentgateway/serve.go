package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/square-key-labs/agentgateway/src/config"
	"github.com/square-key-labs/agentgateway/src/gateway"
	"github.com/square-key-labs/agentgateway/src/logger"
)

// newServeCmd starts the /agent WebSocket endpoint and HTTP sidecar,
// blocking until SIGINT/SIGTERM and then draining in-flight connections
// (mirrors pocket-tts's serve command's signal.NotifyContext shutdown).
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			srv, err := gateway.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logger.WithPrefix("cmd")
			log.Info("starting agentgateway on :%s", cfg.Server.Port)
			return srv.ListenAndServe(ctx)
		},
	}
}

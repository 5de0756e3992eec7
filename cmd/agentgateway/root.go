package main

import (
	"github.com/spf13/cobra"

	"github.com/square-key-labs/agentgateway/src/logger"
)

// newRootCmd builds the agentgateway command tree. Configuration is
// entirely environment-variable driven (spec §6), so unlike the
// teacher's pocket-tts CLI there is no --config flag or flag-bound
// defaults to register here: serve calls config.Load directly, and
// health needs no configuration beyond its --addr flag.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentgateway",
		Short: "Real-time voice agent gateway",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init()
		},
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())

	return cmd
}

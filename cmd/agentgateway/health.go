package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// newHealthCmd probes a running gateway's /healthz endpoint, mirroring
// pocket-tts's health subcommand as a thin CLI wrapper over the sidecar.
func newHealthCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running gateway's /healthz endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get("http://" + addr + "/healthz")
			if err != nil {
				return fmt.Errorf("health probe: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("health probe: unexpected status %s", resp.Status)
			}
			_, err = fmt.Fprintln(os.Stdout, "ok")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "gateway address to probe")

	return cmd
}

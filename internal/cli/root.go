// Package cli implements the depthctl command-line client.
package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"depth-studio-backend/internal/apiclient"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "depthctl",
	Short:         "Client for the depth studio image generation server",
	SilenceUsage:  true,
}

func init() {
	defaultServer := os.Getenv("DEPTHCTL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:5000"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Server base URL (env DEPTHCTL_SERVER)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Overall request timeout")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newClient() *apiclient.Client {
	return apiclient.New(serverURL, nil)
}

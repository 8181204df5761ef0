// Package main is the entrypoint for the issues backend. It serves the REST
// and GraphQL APIs, consumes scan events from Kafka and offers offline
// maintenance commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "issues-backend",
		Short:         "Compliance issue deduplication and lifecycle service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ISSUES_CONFIG"), "path to YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(fingerprintCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

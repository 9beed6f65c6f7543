package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "rssauth"

// Set at build time with -ldflags "-X main.version=...".
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Authentication service",
		Long: `rssauth registers accounts, checks credentials and issues signed
bearer tokens that the other services verify.

Running it without a subcommand starts the HTTP server.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	cmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		createAdminCmd(),
		versionCmd(),
	)

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, version, buildTime)
		},
	}
}

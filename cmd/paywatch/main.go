// Package main is the entry point for the paywatch CLI.
//
// paywatch can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	paywatch watch -c config.yaml <payment-id>...  # Poll until settled
//	paywatch check -c config.yaml <payment-id>     # Single status request
//	paywatch validate -c config.yaml               # Validate configuration
//	paywatch version                               # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "paywatch",
	Short: "Poll payment status until it settles",
	Long: `paywatch polls a payment service's status endpoint until a payment
reaches a terminal state: success, failed, cancelled, or expired.

It polls immediately, then at escalating delays (1s, 2s, 3s, then a flat
5s), and gives up after a configurable wall-clock budget (30m by default).

Quick start:
  1. Create a config file (paywatch.yaml)
  2. Run: paywatch watch -c paywatch.yaml <payment-id>

Example config:
  base_url: https://payments.example.com
  auth_token: ${PAYWATCH_TOKEN}
  budget: 30m
  schedule: [1s, 2s, 3s, 5s]`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this paywatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("paywatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}

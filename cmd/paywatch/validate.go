package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vendly/paywatch/config"
)

// validateCmd validates a config file without issuing any requests.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a paywatch configuration file without contacting the payment
service.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  paywatch validate -c config.yaml
  paywatch validate --config /etc/paywatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	delays := make([]string, len(cfg.Schedule))
	for i, d := range cfg.Schedule {
		delays[i] = d.Duration().String()
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Base URL:        %s\n", cfg.BaseURL)
	fmt.Printf("  Request timeout: %s\n", cfg.RequestTimeout.Duration())
	fmt.Printf("  Budget:          %s\n", cfg.Budget.Duration())
	fmt.Printf("  Schedule:        %s\n", strings.Join(delays, ", "))

	return nil
}

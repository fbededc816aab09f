package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vendly/paywatch/config"
)

// checkTimeout bounds the whole one-shot check, on top of the per-request
// timeout from the config.
const checkTimeout = 30 * time.Second

// checkCmd performs a single status request.
var checkCmd = &cobra.Command{
	Use:   "check <payment-id>",
	Short: "Fetch a payment's status once",
	Long: `Perform a single status request for one payment and print the snapshot
as JSON. No polling session is started.

The command exits 0 regardless of the payment's state; a non-zero exit
means the status could not be read at all.

Example:
  paywatch check -c config.yaml pay_8f3kq`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = checkCmd.MarkFlagRequired("config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	logger := newLogger(false)

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	watcher, err := config.NewWatcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	snapshot, err := watcher.CheckStatus(ctx, args[0])
	if err != nil {
		return fmt.Errorf("status check failed: %w", err)
	}

	out := struct {
		SubjectID     string `json:"subject_id"`
		Status        string `json:"status"`
		IsExpired     bool   `json:"is_expired"`
		FailureReason string `json:"failure_reason,omitempty"`
		CheckedAt     string `json:"checked_at"`
	}{
		SubjectID:     snapshot.SubjectID,
		Status:        snapshot.Status.String(),
		IsExpired:     snapshot.IsExpired,
		FailureReason: snapshot.FailureReason,
		CheckedAt:     snapshot.CheckedAt.Format(time.RFC3339),
	}

	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return nil
}

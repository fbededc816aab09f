package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vendly/paywatch/config"
)

// newLogger creates a JSON logger for CLI use.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// watchCmd polls one or more payments until they settle.
var watchCmd = &cobra.Command{
	Use:   "watch <payment-id>...",
	Short: "Poll payments until they settle",
	Long: `Poll the status of one or more payments until each reaches a terminal
state or the session budget runs out.

Payments are watched concurrently; each gets its own polling session with
the configured schedule and budget. The command exits 0 when every payment
succeeded, and 1 when any payment failed, was cancelled, expired, timed
out, or could not be read.

The command runs until all payments settle or it is interrupted (Ctrl+C).

Example:
  paywatch watch -c config.yaml pay_8f3kq
  paywatch watch -c config.yaml pay_8f3kq pay_1x9mm --verbose`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().BoolP("verbose", "v", false, "log every poll attempt")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(verbose)

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	watcher, err := config.NewWatcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	logger.Info("watching payments",
		"base_url", watcher.BaseURL(),
		"budget", watcher.Budget().String(),
		"count", len(args),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed bool
	)

	for _, id := range args {
		wg.Add(1)
		go func(subjectID string) {
			defer wg.Done()

			snapshot, err := watcher.Wait(ctx, subjectID)
			if err != nil {
				mu.Lock()
				failed = true
				mu.Unlock()
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", subjectID, err)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", subjectID, snapshot.Status)
		}(id)
	}

	wg.Wait()

	if ctx.Err() != nil {
		logger.Info("interrupted")
	}
	if failed {
		// details were already printed per payment
		cmd.SilenceUsage = true
		return errors.New("one or more payments did not succeed")
	}
	return nil
}

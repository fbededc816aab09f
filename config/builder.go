package config

import (
	"log/slog"
	"time"

	"github.com/vendly/paywatch"
)

// NewWatcher converts parsed configuration into a [paywatch.Watcher].
//
// The returned watcher is ready for use; the caller owns its lifecycle and
// must call Close when done.
func NewWatcher(cfg *Config, logger *slog.Logger) (*paywatch.Watcher, error) {
	opts := []paywatch.Option{
		paywatch.WithRequestTimeout(cfg.RequestTimeout.Duration()),
		paywatch.WithBudget(cfg.Budget.Duration()),
		paywatch.WithSchedule(toDurations(cfg.Schedule)...),
	}

	if cfg.AuthToken != "" {
		opts = append(opts, paywatch.WithAuthToken(cfg.AuthToken))
	}

	for key, value := range cfg.Headers {
		opts = append(opts, paywatch.WithHeader(key, value))
	}

	if logger != nil {
		opts = append(opts, paywatch.WithLogger(logger))
	}

	return paywatch.New(cfg.BaseURL, opts...)
}

// toDurations unwraps the YAML Duration slice.
func toDurations(ds []Duration) []time.Duration {
	out := make([]time.Duration, len(ds))
	for i, d := range ds {
		out[i] = d.Duration()
	}
	return out
}

package paywatch

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// watcherConfig holds mutable state during Watcher construction.
type watcherConfig struct {
	headers         map[string]string
	requestTimeout  time.Duration
	budget          time.Duration
	schedule        []time.Duration
	logger          *slog.Logger
	updateCallbacks []func(SessionView)
}

// Option is a function that configures a [Watcher] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithHeader], [WithAuthToken], [WithRequestTimeout],
// [WithBudget], [WithSchedule], [WithLogger], [WithUpdateCallback].
type Option func(*watcherConfig) error

// WithHeader adds an HTTP header sent with every status request.
//
// Can be called multiple times; a repeated key replaces the earlier value.
//
// Example:
//
//	w, err := paywatch.New(baseURL,
//	    paywatch.WithHeader("X-Tenant", "acme"),
//	)
//
// Returns an error if the key is empty.
func WithHeader(key, value string) Option {
	return func(cfg *watcherConfig) error {
		if key == "" {
			return errors.New("header key cannot be empty")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		cfg.headers[key] = value
		return nil
	}
}

// WithAuthToken sets a bearer token sent in the Authorization header of
// every status request.
//
// Returns an error if the token is empty.
func WithAuthToken(token string) Option {
	return func(cfg *watcherConfig) error {
		if token == "" {
			return errors.New("auth token cannot be empty")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string)
		}
		cfg.headers["Authorization"] = "Bearer " + token
		return nil
	}
}

// WithRequestTimeout sets the timeout for a single status request.
// Defaults to 10 seconds if not specified.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithBudget sets the wall-clock limit for one polling session.
//
// When a session's elapsed time exceeds the budget, polling stops and the
// session reports a [*TimeoutError]. Defaults to 30 minutes if not
// specified.
//
// Returns an error if the duration is zero or negative.
func WithBudget(d time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if d <= 0 {
			return errors.New("budget must be positive")
		}
		cfg.budget = d
		return nil
	}
}

// WithSchedule sets the delays between poll attempts.
//
// delays[n] is the wait after attempt n resolves; attempts past the end of
// the slice reuse the last entry. The schedule is deterministic: no jitter
// is applied. Defaults to 1s, 2s, 3s, then a flat 5s if not specified.
//
// Example:
//
//	w, err := paywatch.New(baseURL,
//	    paywatch.WithSchedule(500*time.Millisecond, time.Second, 2*time.Second),
//	)
//
// Returns an error if no delays are given or any delay is not positive.
func WithSchedule(delays ...time.Duration) Option {
	return func(cfg *watcherConfig) error {
		if len(delays) == 0 {
			return errors.New("schedule requires at least one delay")
		}
		for i, d := range delays {
			if d <= 0 {
				return fmt.Errorf("schedule delay %d must be positive, got %s", i, d)
			}
		}
		cfg.schedule = append([]time.Duration(nil), delays...)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Watcher instance.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watcherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithUpdateCallback registers a function invoked on every state change of
// any payment the watcher is polling.
//
// The callback receives a [SessionView] value copy. Multiple callbacks may
// be registered; they execute in registration order on a single goroutine
// owned by the watcher.
//
// IMPORTANT: Callbacks must be non-blocking. Long-running operations
// should dispatch work to a separate goroutine; blocking callbacks can
// cause state updates to be dropped for this consumer.
//
// Panics within callbacks are recovered and logged; they do not crash the
// watcher.
//
// Nil callbacks are silently ignored.
func WithUpdateCallback(cb func(SessionView)) Option {
	return func(cfg *watcherConfig) error {
		if cb == nil {
			return nil // no-op for nil callback (safe to call)
		}
		cfg.updateCallbacks = append(cfg.updateCallbacks, cb)
		return nil
	}
}

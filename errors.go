package paywatch

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned when starting work on a closed [Watcher].
var ErrClosed = errors.New("paywatch: watcher is closed")

// StateError reports that a payment reached a terminal state other than
// success: failed, cancelled, or expired. The snapshot that carried the
// terminal state is included.
type StateError struct {
	Snapshot Snapshot
}

func (e *StateError) Error() string {
	switch {
	case e.Snapshot.Status == StatusFailed:
		if e.Snapshot.FailureReason != "" {
			return fmt.Sprintf("payment failed: %s", e.Snapshot.FailureReason)
		}
		return "payment failed"
	case e.Snapshot.Status == StatusCancelled:
		return "payment was cancelled"
	case e.Snapshot.IsExpired:
		return "payment session expired"
	}
	return fmt.Sprintf("payment ended in state %q", e.Snapshot.Status)
}

// TimeoutError reports that a polling session exhausted its wall-clock
// budget without the payment reaching a terminal state.
//
// TimeoutError is distinct from [StateError]: the payment may still settle
// server-side; this client simply stopped waiting.
type TimeoutError struct {
	SubjectID string
	Budget    time.Duration
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for payment %q to settle after %s",
		e.SubjectID, e.Elapsed.Round(time.Second))
}

// RequestError reports a non-2xx response from the status endpoint.
//
// During a polling session only client errors (HTTP 403 and 404) surface
// as a RequestError; they mean the status can never be read, so the
// session stops. Other non-2xx codes are retried. [Watcher.CheckStatus]
// returns a RequestError for any non-2xx response.
type RequestError struct {
	SubjectID  string
	StatusCode int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("status request for payment %q rejected: HTTP %d",
		e.SubjectID, e.StatusCode)
}

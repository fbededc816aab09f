package paywatch

import "time"

// Status represents the state of a payment as reported by the payment
// service.
//
// Status is a string type holding one of five service-defined values:
// [StatusPending], [StatusProcessing], [StatusSuccess], [StatusFailed], or
// [StatusCancelled]. Using a string type allows for easy JSON serialization
// and human-readable logging while maintaining type safety through the
// defined constants. Values outside this set are possible if the service
// introduces new states; they are treated as non-terminal.
type Status string

const (
	// StatusPending indicates the payment has been created but not yet
	// picked up by the payment provider.
	StatusPending Status = "pending"

	// StatusProcessing indicates the payment provider is working on the
	// payment.
	StatusProcessing Status = "processing"

	// StatusSuccess indicates the payment completed.
	StatusSuccess Status = "success"

	// StatusFailed indicates the payment failed.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the payment was cancelled.
	StatusCancelled Status = "cancelled"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status alone ends a polling session.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Snapshot is one immutable status response from the payment service.
//
// Each poll attempt that receives a response produces a new Snapshot; the
// latest one replaces its predecessor in the watcher's state. The service
// is the sole source of truth: nothing in a Snapshot is computed locally.
type Snapshot struct {
	// SubjectID identifies the payment the snapshot belongs to.
	SubjectID string

	// Status is the payment state reported by the service.
	Status Status

	// IsExpired reports whether the payment session has expired
	// server-side. Expiry is terminal even when Status is still pending.
	IsExpired bool

	// FailureReason is a human-readable reason for a failed payment.
	// Empty when the service did not provide one.
	FailureReason string

	// StatusCode is the HTTP status code of the response that produced
	// this snapshot.
	StatusCode int

	// Latency is the time taken to complete the status request.
	Latency time.Duration

	// CheckedAt is the timestamp when the snapshot was received.
	CheckedAt time.Time
}

// Terminal reports whether the snapshot ends a polling session, either
// through a terminal status or server-side expiry.
func (s Snapshot) Terminal() bool {
	return s.Status.Terminal() || s.IsExpired
}

// SessionView is a read-only view of one payment's polling state.
//
// Views are value copies: holding one never observes later mutations, and
// two calls with no intervening update return equal values.
type SessionView struct {
	// SubjectID identifies the payment.
	SubjectID string

	// Status is the latest status reported by the service. Empty until
	// the first snapshot arrives.
	Status Status

	// IsExpired reports whether the payment session expired server-side.
	IsExpired bool

	// FailureReason is the human-readable failure reason, if any.
	FailureReason string

	// Polling reports whether a session is actively polling this payment.
	Polling bool

	// Loading reports whether a status request is currently in flight.
	Loading bool

	// Attempts is the number of poll attempts issued so far.
	Attempts int

	// CheckedAt is the timestamp of the last received snapshot.
	CheckedAt time.Time

	// Err is the terminal error the session ended with, if any.
	Err error
}

package store

import "time"

// SessionState is the stored polling state for one payment.
//
// SessionState is the storage representation, optimized for JSON
// serialization (used by the CLI's progress output). It is decoupled from
// the poller's internal types to allow independent evolution.
type SessionState struct {
	// SubjectID identifies the payment.
	SubjectID string `json:"subject_id"`

	// Status is the latest status string reported by the payment service.
	// Empty until the first snapshot arrives.
	Status string `json:"status"`

	// IsExpired reports whether the payment session expired server-side.
	IsExpired bool `json:"is_expired"`

	// FailureReason is the human-readable failure reason, if any.
	FailureReason string `json:"failure_reason,omitempty"`

	// Polling reports whether a session is actively polling this payment.
	Polling bool `json:"polling"`

	// Loading reports whether a status request is currently in flight.
	Loading bool `json:"loading"`

	// Attempts is the number of poll attempts issued so far.
	Attempts int `json:"attempts"`

	// CheckedAt is the timestamp of the last received snapshot.
	CheckedAt time.Time `json:"checked_at"`

	// Error contains the terminal error message if polling ended in one.
	// nil indicates no error.
	Error *string `json:"error"`
}

// Store defines the interface for storing and subscribing to payment
// polling state.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism pushes every state change to subscribers, giving consumers
// event semantics without polling the store.
type Store interface {
	// Update stores a new session state and notifies all subscribers.
	// The state is keyed by SubjectID; subsequent updates replace previous
	// values.
	Update(state SessionState)

	// Get returns the state for one payment and whether it exists.
	Get(subjectID string) (SessionState, bool)

	// GetAll returns all currently stored states.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []SessionState

	// ClearError clears the stored error for one payment, if any.
	// Unknown subject ids are ignored.
	ClearError(subjectID string)

	// Subscribe returns a channel that receives state updates.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan SessionState

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan SessionState)
}

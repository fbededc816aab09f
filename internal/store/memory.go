package store

import (
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore provides thread-safe storage with a publish-subscribe
// mechanism for state updates. States are keyed by subject id, with new
// values replacing previous ones.
//
// Subscribers receive updates via buffered channels (buffer size 100).
// Updates are sent non-blocking; if a subscriber's buffer is full, the
// update is dropped for that subscriber to prevent blocking the poller.
type MemoryStore struct {
	mu          sync.RWMutex
	states      map[string]SessionState
	subscribers map[chan SessionState]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory [Store] implementation.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      make(map[string]SessionState),
		subscribers: make(map[chan SessionState]struct{}),
	}
}

// Update stores a [SessionState] and notifies all subscribers.
//
// The state is stored using its SubjectID as the key. Subsequent updates
// with the same subject id replace the previous value.
func (m *MemoryStore) Update(state SessionState) {
	m.mu.Lock()
	m.states[state.SubjectID] = state
	m.mu.Unlock()

	m.notifySubscribers(state)
}

// Get returns the stored state for subjectID and whether it exists.
func (m *MemoryStore) Get(subjectID string) (SessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[subjectID]
	return state, ok
}

// GetAll returns a snapshot of all currently stored states.
//
// The returned slice is a copy; modifications do not affect the store.
// Order is not guaranteed.
func (m *MemoryStore) GetAll() []SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]SessionState, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}
	return states
}

// ClearError clears the stored error for subjectID, notifying subscribers
// if the state changed. Unknown subject ids and error-free states are
// no-ops.
func (m *MemoryStore) ClearError(subjectID string) {
	m.mu.Lock()
	state, ok := m.states[subjectID]
	if !ok || state.Error == nil {
		m.mu.Unlock()
		return
	}
	state.Error = nil
	m.states[subjectID] = state
	m.mu.Unlock()

	m.notifySubscribers(state)
}

// Subscribe creates a new subscription and returns a channel for receiving
// updates.
//
// The returned channel has a buffer of 100 messages. If the buffer fills
// (slow consumer), new updates are dropped for this subscriber.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource
// leaks.
func (m *MemoryStore) Subscribe() <-chan SessionState {
	ch := make(chan SessionState, 100)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// updates will be sent. Safe to call multiple times or with an unknown
// channel.
func (m *MemoryStore) Unsubscribe(ch <-chan SessionState) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the state to all active subscribers.
//
// This is non-blocking: if a subscriber's channel buffer is full, the
// message is dropped for that subscriber rather than blocking the poller.
func (m *MemoryStore) notifySubscribers(state SessionState) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- state:
		default:
			// subscriber is slow, drop the message
		}
	}
}

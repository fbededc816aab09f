package paywatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendly/paywatch/internal/poller"
	"github.com/vendly/paywatch/internal/store"
)

// Watcher is the main orchestrator for payment status polling.
//
// Watcher coordinates per-payment polling sessions against one payment
// service, stores the latest observed state for each payment, and reports
// terminal outcomes through callbacks or the awaitable [Watcher.Wait].
// It is created with [New] using functional options, and the caller owns
// its lifecycle: call [Watcher.Close] when done.
//
// The typical lifecycle is:
//
//	w, err := paywatch.New("https://api.example.com")
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//	defer w.Close()
//
//	snapshot, err := w.Wait(ctx, paymentID)
//
// There is no package-level state: every Watcher carries its own store,
// HTTP client, and sessions.
type Watcher struct {
	baseURL  string
	schedule poller.Schedule
	budget   time.Duration
	logger   *slog.Logger
	client   *poller.Client
	store    *store.MemoryStore

	updates  <-chan store.SessionState
	fanoutWG sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*watchSession
	closed   bool
}

// watchSession pairs a polling session with the goroutine consuming its
// events. done is closed when the consumer has fully finished, so stopping
// a session can wait for its last store write.
type watchSession struct {
	session *poller.Session
	done    chan struct{}
}

// stop halts the session and waits until its consumer has finished.
func (ws *watchSession) stop() {
	ws.session.Stop()
	<-ws.done
}

// New creates a [Watcher] polling the payment service at baseURL.
//
// baseURL must be an absolute http:// or https:// URL; the watcher issues
// GET {baseURL}/status/{id}/ requests against it. Options have sensible
// defaults:
//   - Request timeout: 10 seconds
//   - Session budget: 30 minutes
//   - Schedule: 1s, 2s, 3s, then a flat 5s between attempts
//
// Returns an error if the URL or any option is invalid.
//
// Example:
//
//	w, err := paywatch.New("https://payments.example.com",
//	    paywatch.WithAuthToken(token),
//	    paywatch.WithBudget(10*time.Minute),
//	)
func New(baseURL string, opts ...Option) (*Watcher, error) {
	if baseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", parsed.Scheme)
	}

	cfg := &watcherConfig{
		requestTimeout: poller.DefaultRequestTimeout,
		budget:         poller.DefaultBudget,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	schedule := poller.Schedule(cfg.schedule)
	if schedule == nil {
		schedule = poller.DefaultSchedule()
	}

	w := &Watcher{
		baseURL:  baseURL,
		schedule: schedule,
		budget:   cfg.budget,
		logger:   logger,
		client:   poller.NewClient(baseURL, cfg.headers, cfg.requestTimeout),
		store:    store.NewMemoryStore(),
		sessions: make(map[string]*watchSession),
	}

	// push semantics: feed registered update callbacks from the store's
	// subscriber channel on a single goroutine
	if len(cfg.updateCallbacks) > 0 {
		w.updates = w.store.Subscribe()
		w.fanoutWG.Add(1)
		go w.fanout(cfg.updateCallbacks)
	}

	return w, nil
}

// StartPolling begins a polling session for subjectID.
//
// The session polls immediately, then paces attempts with the configured
// schedule until the payment reaches a terminal state, the status endpoint
// rejects the request with 403 or 404, or the session budget is exhausted.
// Exactly one of onSuccess or onError is invoked per session:
//
//   - onSuccess receives the success [Snapshot]
//   - onError receives a [*StateError] (failed, cancelled, expired), a
//     [*TimeoutError] (budget exhausted), or a [*RequestError] (403/404)
//
// Neither is invoked if the session is stopped via [Watcher.StopPolling]
// or replaced by a later StartPolling for the same subject. Either
// callback may be nil. Callbacks run on the session's consumer goroutine;
// panics are recovered and logged.
//
// At most one session per subject is active at a time: starting a new
// session for a subject already being polled stops the prior session
// completely before the new one begins.
func (w *Watcher) StartPolling(subjectID string, onSuccess func(Snapshot), onError func(error)) error {
	if subjectID == "" {
		return errors.New("subject id cannot be empty")
	}

	session := poller.NewSession(subjectID, w.client, w.schedule, w.budget, w.logger)
	ws := &watchSession{session: session, done: make(chan struct{})}

	// enforce "at most one active session per subject" even under racing
	// callers: fully stop any prior session before installing the new one
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return ErrClosed
		}
		prev, ok := w.sessions[subjectID]
		if !ok {
			w.sessions[subjectID] = ws
			w.mu.Unlock()
			break
		}
		delete(w.sessions, subjectID)
		w.mu.Unlock()
		prev.stop()
	}

	session.Start(context.Background())
	go w.consume(ws, subjectID, onSuccess, onError)

	w.logger.Debug("polling started", "subject_id", subjectID)
	return nil
}

// StopPolling halts the active session for subjectID, if any.
//
// StopPolling blocks until the session's loop has exited and its final
// state is stored; an in-flight request resolving afterwards publishes
// nothing. No callback is invoked for a stopped session.
//
// Calling StopPolling when no session is active is a no-op.
func (w *Watcher) StopPolling(subjectID string) {
	w.mu.Lock()
	ws, ok := w.sessions[subjectID]
	if ok {
		delete(w.sessions, subjectID)
	}
	w.mu.Unlock()

	if !ok {
		return
	}
	ws.stop()
	w.logger.Debug("polling stopped", "subject_id", subjectID)
}

// CheckStatus performs a single status request for subjectID.
//
// A non-2xx response is returned as a [*RequestError]. The observation is
// recorded in the watcher's state unless a polling session for the subject
// is active (the session owns the state while it runs).
func (w *Watcher) CheckStatus(ctx context.Context, subjectID string) (Snapshot, error) {
	if subjectID == "" {
		return Snapshot{}, errors.New("subject id cannot be empty")
	}

	ps, err := w.client.Status(ctx, subjectID)
	if err != nil {
		var reqErr *poller.RequestError
		if errors.As(err, &reqErr) {
			return Snapshot{}, &RequestError{SubjectID: subjectID, StatusCode: reqErr.StatusCode}
		}
		return Snapshot{}, err
	}

	if !w.IsPolling(subjectID) {
		state, _ := w.store.Get(subjectID)
		state.SubjectID = subjectID
		applySnapshot(&state, ps)
		w.store.Update(state)
	}

	return snapshotFromPoller(ps), nil
}

// Wait polls subjectID until it settles and returns the result.
//
// Wait is the awaitable form of [Watcher.StartPolling]: it returns the
// success [Snapshot], or a typed error ([*StateError], [*TimeoutError],
// [*RequestError]) describing why the payment did not succeed. If ctx is
// cancelled first, the session is stopped and ctx's error is returned.
//
// Starting another session for the same subject while Wait is blocked
// replaces the session Wait is waiting on; Wait then returns only when
// its context ends.
func (w *Watcher) Wait(ctx context.Context, subjectID string) (Snapshot, error) {
	type result struct {
		snapshot Snapshot
		err      error
	}
	done := make(chan result, 1)

	err := w.StartPolling(subjectID,
		func(s Snapshot) { done <- result{snapshot: s} },
		func(err error) { done <- result{err: err} },
	)
	if err != nil {
		return Snapshot{}, err
	}

	select {
	case r := <-done:
		return r.snapshot, r.err
	case <-ctx.Done():
		w.StopPolling(subjectID)
		return Snapshot{}, ctx.Err()
	}
}

// IsPolling reports whether a session is currently active for subjectID.
func (w *Watcher) IsPolling(subjectID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.sessions[subjectID]
	return ok
}

// Active returns the subject ids with an active polling session, sorted.
func (w *Watcher) Active() []string {
	w.mu.Lock()
	ids := make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		ids = append(ids, id)
	}
	w.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// View returns the stored state for subjectID and whether any exists.
// The returned [SessionView] is a value copy.
func (w *Watcher) View(subjectID string) (SessionView, bool) {
	state, ok := w.store.Get(subjectID)
	if !ok {
		return SessionView{}, false
	}
	return viewFromState(state), true
}

// Views returns the stored state of every payment the watcher has
// observed. Order is not guaranteed.
func (w *Watcher) Views() []SessionView {
	states := w.store.GetAll()
	views := make([]SessionView, 0, len(states))
	for _, state := range states {
		views = append(views, viewFromState(state))
	}
	return views
}

// ClearError clears the stored terminal error for subjectID, if any.
func (w *Watcher) ClearError(subjectID string) {
	w.store.ClearError(subjectID)
}

// BaseURL returns the payment service URL the watcher polls.
func (w *Watcher) BaseURL() string {
	return w.baseURL
}

// Budget returns the configured wall-clock limit per polling session.
func (w *Watcher) Budget() time.Duration {
	return w.budget
}

// Close stops all active sessions and releases the watcher's resources.
//
// Close blocks until every session has fully stopped and all update
// callbacks have been delivered. After Close, StartPolling returns
// [ErrClosed]; stored state remains readable. Close is idempotent.
func (w *Watcher) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	sessions := make([]*watchSession, 0, len(w.sessions))
	for _, ws := range w.sessions {
		sessions = append(sessions, ws)
	}
	w.sessions = make(map[string]*watchSession)
	w.mu.Unlock()

	for _, ws := range sessions {
		ws.stop()
	}

	if w.updates != nil {
		w.store.Unsubscribe(w.updates)
		w.fanoutWG.Wait()
	}

	w.client.Close()
	w.logger.Debug("watcher closed")
}

// consume drains one session's events into the store and invokes the
// terminal callback. It owns the subject's stored state while the session
// runs; all mutation is funnelled through here, in event order.
func (w *Watcher) consume(ws *watchSession, subjectID string, onSuccess func(Snapshot), onError func(error)) {
	defer close(ws.done)

	state := store.SessionState{SubjectID: subjectID, Polling: true}
	terminal := false

	for ev := range ws.session.Events() {
		switch ev.Kind {
		case poller.EventAttempt:
			state.Polling = true
			state.Loading = true
			state.Attempts = ev.Attempt + 1
			w.store.Update(state)

		case poller.EventSnapshot:
			state.Loading = false
			applySnapshot(&state, ev.Snapshot)
			w.store.Update(state)

		case poller.EventTerminal:
			terminal = true
			w.finish(ws, subjectID, &state, ev, onSuccess, onError)
		}
	}

	if !terminal {
		// stopped by the caller: keep the latest snapshot, flip the flags
		state.Polling = false
		state.Loading = false
		w.store.Update(state)
	}
}

// finish handles a session's single terminal event: it removes the session,
// stores the final state, and invokes exactly one callback.
func (w *Watcher) finish(ws *watchSession, subjectID string, state *store.SessionState, ev poller.Event, onSuccess func(Snapshot), onError func(error)) {
	// remove the session only if it is still the current one; a newer
	// session for the same subject must not be displaced
	w.mu.Lock()
	if cur, ok := w.sessions[subjectID]; ok && cur == ws {
		delete(w.sessions, subjectID)
	}
	w.mu.Unlock()

	state.Polling = false
	state.Loading = false

	var snapshot Snapshot
	if ev.Snapshot != nil {
		applySnapshot(state, ev.Snapshot)
		snapshot = snapshotFromPoller(ev.Snapshot)
	}

	var terminalErr error
	switch ev.Outcome {
	case poller.OutcomeSuccess:
		// settled; no error
	case poller.OutcomeFailed, poller.OutcomeCancelled, poller.OutcomeExpired:
		terminalErr = &StateError{Snapshot: snapshot}
	case poller.OutcomeTimeout:
		terminalErr = &TimeoutError{SubjectID: subjectID, Budget: w.budget, Elapsed: ev.Elapsed}
	case poller.OutcomeDenied:
		var reqErr *poller.RequestError
		if errors.As(ev.Err, &reqErr) {
			terminalErr = &RequestError{SubjectID: subjectID, StatusCode: reqErr.StatusCode}
		} else {
			terminalErr = ev.Err
		}
	}

	if terminalErr != nil {
		msg := terminalErr.Error()
		state.Error = &msg
	}
	w.store.Update(*state)

	if terminalErr == nil {
		w.logger.Info("payment settled",
			"subject_id", subjectID,
			"attempts", state.Attempts,
			"elapsed", ev.Elapsed.String(),
		)
		if onSuccess != nil {
			invokeCallbackSafe(func() { onSuccess(snapshot) }, subjectID, w.logger)
		}
		return
	}

	w.logger.Warn("payment polling ended without success",
		"subject_id", subjectID,
		"attempts", state.Attempts,
		"elapsed", ev.Elapsed.String(),
		"error", terminalErr.Error(),
	)
	if onError != nil {
		invokeCallbackSafe(func() { onError(terminalErr) }, subjectID, w.logger)
	}
}

// fanout delivers store updates to the registered update callbacks.
func (w *Watcher) fanout(callbacks []func(SessionView)) {
	defer w.fanoutWG.Done()
	for state := range w.updates {
		view := viewFromState(state)
		for _, cb := range callbacks {
			invokeViewCallbackSafe(cb, view, w.logger)
		}
	}
}

// applySnapshot copies a received snapshot into the stored state.
func applySnapshot(state *store.SessionState, s *poller.Snapshot) {
	state.Status = s.Status
	state.IsExpired = s.IsExpired
	state.FailureReason = s.FailureReason
	state.CheckedAt = s.CheckedAt
}

// snapshotFromPoller converts the poller's internal snapshot to the public
// API type.
func snapshotFromPoller(s *poller.Snapshot) Snapshot {
	return Snapshot{
		SubjectID:     s.SubjectID,
		Status:        Status(s.Status),
		IsExpired:     s.IsExpired,
		FailureReason: s.FailureReason,
		StatusCode:    s.StatusCode,
		Latency:       s.Latency,
		CheckedAt:     s.CheckedAt,
	}
}

// viewFromState converts stored state to the public read-only view.
func viewFromState(state store.SessionState) SessionView {
	view := SessionView{
		SubjectID:     state.SubjectID,
		Status:        Status(state.Status),
		IsExpired:     state.IsExpired,
		FailureReason: state.FailureReason,
		Polling:       state.Polling,
		Loading:       state.Loading,
		Attempts:      state.Attempts,
		CheckedAt:     state.CheckedAt,
	}
	if state.Error != nil {
		view.Err = errors.New(*state.Error)
	}
	return view
}

// invokeCallbackSafe calls a terminal callback with panic recovery.
// Panics are logged with a correlation id but do not propagate.
func invokeCallbackSafe(fn func(), subjectID string, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			logger.Error("terminal callback panicked",
				"correlation_id", correlationID,
				"panic", r,
				"subject_id", subjectID,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn()
}

// invokeViewCallbackSafe calls an update callback with panic recovery.
func invokeViewCallbackSafe(cb func(SessionView), view SessionView, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("update callback panicked",
				"panic", r,
				"subject_id", view.SubjectID,
			)
		}
	}()
	cb(view)
}

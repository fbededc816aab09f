package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultBudget is the wall-clock limit for one polling session.
// Payment confirmations that take longer than this are reported as a
// timeout, independent of how many attempts have been made.
const DefaultBudget = 30 * time.Minute

// EventKind discriminates the events a session emits.
type EventKind int

const (
	// EventAttempt is emitted just before a status request is issued.
	EventAttempt EventKind = iota

	// EventSnapshot is emitted for a non-terminal snapshot (pending,
	// processing). The session keeps polling.
	EventSnapshot

	// EventTerminal is emitted exactly once, as the session's final event,
	// when polling ends for any reason other than Stop.
	EventTerminal
)

// Outcome classifies why a session reached a terminal event.
type Outcome int

const (
	// OutcomeNone means the session has not terminated.
	OutcomeNone Outcome = iota

	// OutcomeSuccess means the payment completed.
	OutcomeSuccess

	// OutcomeFailed means the payment failed.
	OutcomeFailed

	// OutcomeCancelled means the payment was cancelled.
	OutcomeCancelled

	// OutcomeExpired means the payment session expired server-side.
	OutcomeExpired

	// OutcomeTimeout means the session exhausted its wall-clock budget.
	OutcomeTimeout

	// OutcomeDenied means the status endpoint rejected the request with a
	// client error (403 or 404) and polling can never succeed.
	OutcomeDenied
)

// Event is one observation emitted by a [Session].
type Event struct {
	// SubjectID identifies the payment the event belongs to.
	SubjectID string

	// Attempt is the zero-based index of the poll attempt.
	Attempt int

	// Kind discriminates attempt, snapshot, and terminal events.
	Kind EventKind

	// Snapshot is the received snapshot. Nil for EventAttempt and for
	// terminal events caused by timeouts or request errors.
	Snapshot *Snapshot

	// Outcome is set for EventTerminal; OutcomeNone otherwise.
	Outcome Outcome

	// Err is set for terminal events caused by a request error.
	Err error

	// Elapsed is the wall-clock time since the session started.
	Elapsed time.Duration
}

// Session polls the status of a single payment until it reaches a terminal
// state, its budget is exhausted, or it is stopped.
//
// A session polls immediately on Start, then paces subsequent attempts with
// its [Schedule]. Attempts are strictly sequential: the next delay is armed
// only after the current attempt has resolved, so a slow response stretches
// the effective interval rather than overlapping requests.
//
// Events are emitted on the channel returned by [Session.Events]; the
// channel is closed when the session ends. All lifecycle methods are safe
// for concurrent use.
type Session struct {
	subjectID string
	client    *Client
	schedule  Schedule
	budget    time.Duration
	logger    *slog.Logger
	events    chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewSession creates a polling [Session] for subjectID.
//
// A zero budget means [DefaultBudget]. A nil schedule means
// [DefaultSchedule]. The session must be started with [Session.Start] and
// stopped with [Session.Stop]; events are delivered via [Session.Events].
func NewSession(subjectID string, client *Client, schedule Schedule, budget time.Duration, logger *slog.Logger) *Session {
	if schedule == nil {
		schedule = DefaultSchedule()
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		subjectID: subjectID,
		client:    client,
		schedule:  schedule,
		budget:    budget,
		logger:    logger,
		events:    make(chan Event, 16),
	}
}

// Events returns a receive-only channel that emits [Event] values.
//
// The channel is closed when the session ends, whether by terminal outcome
// or by Stop. A stopped session closes the channel without a terminal event.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Start begins the polling loop in a background goroutine.
//
// Start is non-blocking and idempotent; subsequent calls after the first
// are no-ops. If Stop was called before Start, Start is a no-op. If ctx is
// nil, context.Background() is used as the parent context.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.events) })
		s.run(pollCtx)
	}()
}

// Stop halts the session and waits for the polling loop to exit.
//
// Stop cancels the session's context, blocks until any in-flight request
// has resolved and the loop has returned, and guarantees the events channel
// is closed. A request that resolves after Stop publishes nothing.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.events) })
}

// run is the polling loop. It returns when a terminal event has been
// emitted or the context is cancelled.
func (s *Session) run(ctx context.Context) {
	startedAt := time.Now()

	// zero-delay first tick: poll immediately, then pace with the schedule
	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		elapsed := time.Since(startedAt)
		if elapsed >= s.budget {
			s.emit(ctx, Event{
				SubjectID: s.subjectID,
				Attempt:   attempt,
				Kind:      EventTerminal,
				Outcome:   OutcomeTimeout,
				Elapsed:   elapsed,
			})
			return
		}

		s.emit(ctx, Event{
			SubjectID: s.subjectID,
			Attempt:   attempt,
			Kind:      EventAttempt,
			Elapsed:   elapsed,
		})

		snapshot, err := s.client.Status(ctx, s.subjectID)

		// a request that resolves after Stop must not publish stale state
		if ctx.Err() != nil {
			return
		}

		switch {
		case err != nil:
			var reqErr *RequestError
			if errors.As(err, &reqErr) && reqErr.Terminal() {
				s.emit(ctx, Event{
					SubjectID: s.subjectID,
					Attempt:   attempt,
					Kind:      EventTerminal,
					Outcome:   OutcomeDenied,
					Err:       err,
					Elapsed:   time.Since(startedAt),
				})
				return
			}
			// transient: log and keep polling
			s.logger.Warn("status request failed, will retry",
				"subject_id", s.subjectID,
				"attempt", attempt,
				"error", err,
			)

		default:
			outcome := classify(snapshot)
			if outcome != OutcomeNone {
				s.emit(ctx, Event{
					SubjectID: s.subjectID,
					Attempt:   attempt,
					Kind:      EventTerminal,
					Outcome:   outcome,
					Snapshot:  snapshot,
					Elapsed:   time.Since(startedAt),
				})
				return
			}
			s.logger.Debug("payment not settled yet",
				"subject_id", s.subjectID,
				"attempt", attempt,
				"status", snapshot.Status,
			)
			s.emit(ctx, Event{
				SubjectID: s.subjectID,
				Attempt:   attempt,
				Kind:      EventSnapshot,
				Snapshot:  snapshot,
				Elapsed:   time.Since(startedAt),
			})
		}

		timer.Reset(s.schedule.Delay(attempt))
	}
}

// emit delivers an event unless the session has been cancelled.
func (s *Session) emit(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

// classify maps a snapshot to its terminal outcome, or OutcomeNone if
// polling should continue. An explicit terminal status wins over the
// expiry flag; expiry alone (with a pending or processing status) is
// reported as expired.
func classify(snapshot *Snapshot) Outcome {
	switch snapshot.Status {
	case StatusSuccess:
		return OutcomeSuccess
	case StatusFailed:
		return OutcomeFailed
	case StatusCancelled:
		return OutcomeCancelled
	}
	if snapshot.IsExpired {
		return OutcomeExpired
	}
	return OutcomeNone
}

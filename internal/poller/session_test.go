package poller

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastSchedule keeps tests quick; the delay table itself is covered in
// backoff_test.go.
func fastSchedule() Schedule {
	return Schedule{5 * time.Millisecond}
}

// statusSequence serves canned JSON bodies in order, repeating the last
// one forever, and counts requests.
type statusSequence struct {
	bodies []string
	codes  []int
	calls  atomic.Int64
}

func (s *statusSequence) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := int(s.calls.Add(1)) - 1
		if n >= len(s.bodies) {
			n = len(s.bodies) - 1
		}
		if s.codes != nil && s.codes[n] != http.StatusOK {
			w.WriteHeader(s.codes[n])
			return
		}
		_, _ = w.Write([]byte(s.bodies[n]))
	}
}

// collectTerminal drains a session's events and returns the terminal event
// (if any) once the channel closes.
func collectTerminal(t *testing.T, s *Session) (Event, bool) {
	t.Helper()

	var terminal Event
	var seen bool
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return terminal, seen
			}
			if ev.Kind == EventTerminal {
				if seen {
					t.Fatal("session emitted more than one terminal event")
				}
				terminal = ev
				seen = true
			}
		case <-timeout:
			t.Fatal("timeout waiting for session events to close")
		}
	}
}

// TestSession_SuccessOnThirdAttempt verifies that a payment reporting
// pending, pending, success produces exactly one success terminal event on
// the third attempt and that polling stops afterwards.
func TestSession_SuccessOnThirdAttempt(t *testing.T) {
	seq := &statusSequence{bodies: []string{
		`{"status": "pending"}`,
		`{"status": "processing"}`,
		`{"status": "success"}`,
	}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_123", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())
	defer session.Stop()

	terminal, ok := collectTerminal(t, session)
	if !ok {
		t.Fatal("session ended without a terminal event")
	}
	if terminal.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %v, want OutcomeSuccess", terminal.Outcome)
	}
	if terminal.Snapshot == nil || terminal.Snapshot.Status != StatusSuccess {
		t.Errorf("terminal Snapshot = %+v, want status success", terminal.Snapshot)
	}
	if terminal.Attempt != 2 {
		t.Errorf("terminal Attempt = %d, want 2", terminal.Attempt)
	}

	calls := seq.calls.Load()
	if calls != 3 {
		t.Errorf("server saw %d requests, want 3", calls)
	}

	// no further requests after the terminal event
	time.Sleep(50 * time.Millisecond)
	if got := seq.calls.Load(); got != calls {
		t.Errorf("server saw %d requests after terminal event, want %d", got, calls)
	}
}

// TestSession_NotFoundStopsImmediately verifies that a 404 ends the
// session after the first response with a denied outcome.
func TestSession_NotFoundStopsImmediately(t *testing.T) {
	seq := &statusSequence{
		bodies: []string{""},
		codes:  []int{http.StatusNotFound},
	}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_404", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())
	defer session.Stop()

	terminal, ok := collectTerminal(t, session)
	if !ok {
		t.Fatal("session ended without a terminal event")
	}
	if terminal.Outcome != OutcomeDenied {
		t.Errorf("Outcome = %v, want OutcomeDenied", terminal.Outcome)
	}
	if terminal.Err == nil {
		t.Error("terminal Err = nil, want *RequestError")
	}

	time.Sleep(50 * time.Millisecond)
	if calls := seq.calls.Load(); calls != 1 {
		t.Errorf("server saw %d requests, want exactly 1", calls)
	}
}

// TestSession_TransientErrorsContinue verifies that 5xx responses are
// retried and the session still reaches its terminal state.
func TestSession_TransientErrorsContinue(t *testing.T) {
	seq := &statusSequence{
		bodies: []string{"", "", `{"status": "success"}`},
		codes:  []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK},
	}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_flaky", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())
	defer session.Stop()

	terminal, ok := collectTerminal(t, session)
	if !ok {
		t.Fatal("session ended without a terminal event")
	}
	if terminal.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %v, want OutcomeSuccess after transient errors", terminal.Outcome)
	}
	if calls := seq.calls.Load(); calls != 3 {
		t.Errorf("server saw %d requests, want 3", calls)
	}
}

// TestSession_BudgetTimeout verifies that a payment stuck in pending is
// cut off once the session's wall-clock budget is exhausted, with a
// timeout outcome distinct from the business failures.
func TestSession_BudgetTimeout(t *testing.T) {
	seq := &statusSequence{bodies: []string{`{"status": "pending"}`}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_stuck", client, fastSchedule(), 40*time.Millisecond, testLogger())
	session.Start(context.Background())
	defer session.Stop()

	terminal, ok := collectTerminal(t, session)
	if !ok {
		t.Fatal("session ended without a terminal event")
	}
	if terminal.Outcome != OutcomeTimeout {
		t.Errorf("Outcome = %v, want OutcomeTimeout", terminal.Outcome)
	}
	if terminal.Elapsed < 40*time.Millisecond {
		t.Errorf("Elapsed = %s, want >= budget 40ms", terminal.Elapsed)
	}
	if terminal.Snapshot != nil {
		t.Errorf("timeout Snapshot = %+v, want nil", terminal.Snapshot)
	}

	calls := seq.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if got := seq.calls.Load(); got != calls {
		t.Errorf("server saw %d requests after timeout, want %d", got, calls)
	}
}

// TestSession_TerminalStates verifies the mapping from response bodies to
// terminal outcomes.
func TestSession_TerminalStates(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Outcome
	}{
		{name: "failed", body: `{"status": "failed", "failure_reason": "card declined"}`, want: OutcomeFailed},
		{name: "cancelled", body: `{"status": "cancelled"}`, want: OutcomeCancelled},
		{name: "expired while pending", body: `{"status": "pending", "is_expired": true}`, want: OutcomeExpired},
		{name: "status wins over expiry", body: `{"status": "failed", "is_expired": true}`, want: OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := &statusSequence{bodies: []string{tt.body}}
			server := httptest.NewServer(seq.handler())
			defer server.Close()

			client := NewClient(server.URL, nil, time.Second)
			defer client.Close()

			session := NewSession("pay_t", client, fastSchedule(), time.Minute, testLogger())
			session.Start(context.Background())
			defer session.Stop()

			terminal, ok := collectTerminal(t, session)
			if !ok {
				t.Fatal("session ended without a terminal event")
			}
			if terminal.Outcome != tt.want {
				t.Errorf("Outcome = %v, want %v", terminal.Outcome, tt.want)
			}
		})
	}
}

// TestSession_UnknownStatusKeepsPolling verifies that a status string this
// client does not know is treated as non-terminal; the service may add
// states and an old client must not invent an outcome for them.
func TestSession_UnknownStatusKeepsPolling(t *testing.T) {
	seq := &statusSequence{bodies: []string{
		`{"status": "reviewing"}`,
		`{"status": "success"}`,
	}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_new", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())
	defer session.Stop()

	terminal, ok := collectTerminal(t, session)
	if !ok {
		t.Fatal("session ended without a terminal event")
	}
	if terminal.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %v, want OutcomeSuccess on the second attempt", terminal.Outcome)
	}
	if calls := seq.calls.Load(); calls != 2 {
		t.Errorf("server saw %d requests, want 2", calls)
	}
}

// TestSession_StopBeforeStart verifies that calling Stop() on a session
// that was never started does not panic and is a safe no-op.
func TestSession_StopBeforeStart(t *testing.T) {
	client := NewClient("http://example.com", nil, time.Second)
	defer client.Close()

	session := NewSession("pay_123", client, fastSchedule(), time.Minute, testLogger())

	// this must not panic
	session.Stop()

	// channel must be closed
	if _, ok := <-session.Events(); ok {
		t.Error("expected events channel to be closed after Stop()")
	}

	// Start after Stop must be a no-op
	session.Start(context.Background())
}

// TestSession_StopTwice verifies that Stop() is idempotent and can be
// called multiple times without panic or deadlock.
func TestSession_StopTwice(t *testing.T) {
	seq := &statusSequence{bodies: []string{`{"status": "pending"}`}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_123", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())

	// drain events so the loop never blocks
	go func() {
		for range session.Events() {
		}
	}()

	// both calls must complete without panic or deadlock
	session.Stop()
	session.Stop()
}

// TestSession_StopSuppressesInFlightResult verifies the cooperative
// cancellation contract: a request that resolves after Stop publishes
// nothing, so a stale response cannot leak into a newer session's state.
func TestSession_StopSuppressesInFlightResult(t *testing.T) {
	requestStarted := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(requestStarted)
		<-release
		_, _ = w.Write([]byte(`{"status": "success"}`))
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, nil, time.Minute)
	defer client.Close()

	session := NewSession("pay_slow", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())

	var events []Event
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range session.Events() {
			events = append(events, ev)
		}
	}()

	<-requestStarted
	session.Stop()
	<-drained

	for _, ev := range events {
		if ev.Kind != EventAttempt {
			t.Errorf("stopped session emitted %v event, want only attempt events", ev.Kind)
		}
	}
}

// TestSession_StartIdempotent verifies that a second Start does not spawn
// a second polling loop.
func TestSession_StartIdempotent(t *testing.T) {
	seq := &statusSequence{bodies: []string{`{"status": "success"}`}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_123", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())
	session.Start(context.Background())
	defer session.Stop()

	if _, ok := collectTerminal(t, session); !ok {
		t.Fatal("session ended without a terminal event")
	}

	time.Sleep(50 * time.Millisecond)
	if calls := seq.calls.Load(); calls != 1 {
		t.Errorf("server saw %d requests, want 1 (double Start must not double poll)", calls)
	}
}

// TestSession_SequentialAttempts verifies that attempt N+1 never starts
// before attempt N has resolved, even when responses are slow.
func TestSession_SequentialAttempts(t *testing.T) {
	var inFlight atomic.Int64
	var maxInFlight atomic.Int64
	seq := &statusSequence{bodies: []string{
		`{"status": "pending"}`,
		`{"status": "pending"}`,
		`{"status": "success"}`,
	}}
	inner := seq.handler()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(20 * time.Millisecond) // longer than the schedule delay
		inner(w, r)
		inFlight.Add(-1)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	session := NewSession("pay_seq", client, fastSchedule(), time.Minute, testLogger())
	session.Start(context.Background())
	defer session.Stop()

	if _, ok := collectTerminal(t, session); !ok {
		t.Fatal("session ended without a terminal event")
	}

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent requests = %d, want 1 (attempts must be sequential)", got)
	}
}

// TestSession_ContextCancelStops verifies that cancelling the parent
// context ends the session cleanly.
func TestSession_ContextCancelStops(t *testing.T) {
	seq := &statusSequence{bodies: []string{`{"status": "pending"}`}}
	server := httptest.NewServer(seq.handler())
	defer server.Close()

	client := NewClient(server.URL, nil, time.Second)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	session := NewSession("pay_ctx", client, fastSchedule(), time.Minute, testLogger())
	session.Start(ctx)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	select {
	case <-drainUntilClosed(session):
	case <-time.After(5 * time.Second):
		t.Fatal("events channel did not close after context cancellation")
	}
}

// drainUntilClosed consumes all events and signals when the channel closes.
func drainUntilClosed(s *Session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range s.Events() {
		}
	}()
	return done
}

// Package paywatch polls a payment service's status endpoint until a
// payment settles.
//
// A [Watcher] owns everything needed to follow payments against one
// service: an HTTP client, per-payment polling sessions, and an in-memory
// state store. Sessions poll GET {base}/status/{id}/ immediately, then at
// escalating deterministic delays (1s, 2s, 3s, then a flat 5s), until the
// service reports a terminal state, the request is rejected with 403/404,
// or a 30-minute wall-clock budget runs out.
//
// The service is the sole source of truth. Pending and processing
// responses keep the session alive; success, failed, cancelled, and
// server-side expiry end it. Transient transport failures are logged and
// retried.
//
// # Awaitable use
//
// [Watcher.Wait] blocks until the payment settles and returns the success
// [Snapshot] or a typed error:
//
//	w, err := paywatch.New("https://payments.example.com",
//	    paywatch.WithAuthToken(token),
//	)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	snapshot, err := w.Wait(ctx, paymentID)
//	var stateErr *paywatch.StateError
//	switch {
//	case err == nil:
//	    fmt.Println("paid at", snapshot.CheckedAt)
//	case errors.As(err, &stateErr):
//	    fmt.Println("not paid:", err)
//	}
//
// # Callback use
//
// [Watcher.StartPolling] returns immediately and reports the terminal
// outcome through exactly one of two callbacks:
//
//	err := w.StartPolling(paymentID,
//	    func(s paywatch.Snapshot) { notifyPaid(s) },
//	    func(err error) { notifyFailed(err) },
//	)
//
// [Watcher.StopPolling] cancels a session without invoking either
// callback; call it on teardown. Progress can be observed through
// [WithUpdateCallback] or the [Watcher.View] selectors.
//
// # Guarantees
//
//   - At most one active session per payment; restarting replaces the
//     prior session completely.
//   - Attempts within a session are strictly sequential.
//   - Exactly one terminal callback per session; a stopped session
//     invokes none.
//   - A request resolving after its session stopped never mutates state.
package paywatch

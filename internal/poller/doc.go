// Package poller implements the payment status polling engine.
//
// The package has three pieces:
//
//   - Client: a pooled HTTP client that fetches one status snapshot for a
//     payment from the status endpoint.
//   - Schedule: the deterministic attempt-to-delay table that paces a
//     polling session.
//   - Session: the polling loop for a single payment, emitting events on a
//     channel until a terminal outcome is reached or the session is stopped.
//
// Types in this package are internal representations, decoupled from the
// public paywatch types to avoid circular dependencies. The paywatch package
// converts between the two at its API boundary.
package poller

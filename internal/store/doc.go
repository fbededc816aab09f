// Package store provides in-memory storage for payment polling state.
//
// The store holds the latest observed state for each payment, keyed by
// subject id, and offers a publish-subscribe mechanism so that consumers
// can react to state changes as they happen. State lives for the process
// lifetime only; nothing is persisted.
package store

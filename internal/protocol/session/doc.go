// Package session owns one SIP2 connection to an ILS.
//
// Ownership boundary:
// - transport dialing and the CR-terminated request/response exchange
// - the login + SC status handshake
// - the Disconnected -> Connected -> Authorized -> Closed lifecycle
// - caller-side retry/backoff helpers
//
// A Conn runs one exchange at a time and is not safe for concurrent use.
// Callers needing parallelism open one Conn per goroutine.
package session

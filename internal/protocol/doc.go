// Package protocol owns the SIP2 wire contract and parsing primitives.
//
// Ownership boundary:
// - tagged field encode/decode
// - fixed-position flag reads from a message's first token
// - command codes, field tags, status codes
// - the 18-character transaction timestamp
package protocol

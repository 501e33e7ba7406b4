package protocol

import (
	"fmt"
	"strings"
)

// Flag names one fixed-position character in a message's first token.
type Flag struct {
	Index int
	True  byte
}

// FirstToken returns raw up to the first field delimiter.
func FirstToken(raw string) string {
	if i := strings.IndexByte(raw, Delimiter); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Code returns the two-character command code of raw.
func Code(raw string) (string, error) {
	if len(raw) < 2 {
		return "", fmt.Errorf("%w: no command code in %q", ErrMalformedResponse, raw)
	}
	return raw[:2], nil
}

// ReadFlags reads each flag from the first token of raw and compares it
// case-sensitively against the flag's true character. A position past the
// end of the token is a parse error, never a default false.
func ReadFlags(raw string, flags ...Flag) (map[int]bool, error) {
	head := FirstToken(raw)
	out := make(map[int]bool, len(flags))
	for _, f := range flags {
		if f.Index < 0 || f.Index >= len(head) {
			return nil, fmt.Errorf("%w: flag offset %d beyond prefix of length %d", ErrMalformedResponse, f.Index, len(head))
		}
		out[f.Index] = head[f.Index] == f.True
	}
	return out, nil
}

// RequirePrefix fails unless the first token of raw is at least n bytes.
func RequirePrefix(raw string, n int) error {
	if got := len(FirstToken(raw)); got < n {
		return fmt.Errorf("%w: prefix length %d, need %d", ErrMalformedResponse, got, n)
	}
	return nil
}

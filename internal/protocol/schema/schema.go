package schema

import (
	"fmt"

	"github.com/danmuck/sip2ctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Fixed-prefix layout of the responses this client reads.
const (
	patronStatusOffset = 2
	patronStatusLen    = 14

	itemOKOffset          = 2
	itemRenewalOffset     = 3
	itemMagneticOffset    = 4
	itemDesensitizeOffset = 5

	ackOffset = 2
)

// Requirement describes the positional head of a response code. MinPrefix
// is the shortest first token whose flags can be read; FixedLen is where the
// first tagged field starts inside that token.
type Requirement struct {
	Code      string
	MinPrefix int
	FixedLen  int
}

type ValidationError struct {
	Code   string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: code=%s: %s", e.Code, e.Reason)
}

func (e ValidationError) Unwrap() error { return protocol.ErrMalformedResponse }

var requirements = map[string]Requirement{
	protocol.CodePatronResponse:   {protocol.CodePatronResponse, patronStatusOffset + patronStatusLen, 61},
	protocol.CodeCheckoutResponse: {protocol.CodeCheckoutResponse, itemDesensitizeOffset + 1, 24},
	protocol.CodeCheckinResponse:  {protocol.CodeCheckinResponse, itemDesensitizeOffset + 1, 24},
	protocol.CodeHoldResponse:     {protocol.CodeHoldResponse, itemDesensitizeOffset + 1, 22},
	protocol.CodeRenewResponse:    {protocol.CodeRenewResponse, itemDesensitizeOffset + 1, 24},
	protocol.CodeRenewAllResponse: {protocol.CodeRenewAllResponse, ackOffset + 1, 29},
	protocol.CodeEndSessionResp:   {protocol.CodeEndSessionResp, ackOffset + 1, 21},
}

// Validate checks that raw is long enough to be read as a response of kind
// code. Any response carrying a different code is rejected too.
func Validate(code, raw string) error {
	log.Debug().Str("code", code).Int("len", len(raw)).Msg("schema.Validate")
	req, ok := requirements[code]
	if !ok {
		log.Error().Str("code", code).Msg("schema.Validate unknown response code")
		return ValidationError{Code: code, Reason: "unknown response code"}
	}
	got, err := protocol.Code(raw)
	if err != nil {
		return ValidationError{Code: code, Reason: "missing response code"}
	}
	if got != code {
		log.Error().Str("code", code).Str("got", got).Msg("schema.Validate code mismatch")
		return ValidationError{Code: code, Reason: fmt.Sprintf("unexpected response code %s", got)}
	}
	if err := protocol.RequirePrefix(raw, req.MinPrefix); err != nil {
		log.Error().Str("code", code).Err(err).Msg("schema.Validate short prefix")
		return ValidationError{Code: code, Reason: err.Error()}
	}
	return nil
}

// tagged returns the tagged fields of raw. A tagged field packed into the
// first token right after the fixed head is included; the head itself is not.
func tagged(code, raw string) protocol.Fields {
	head := protocol.FirstToken(raw)
	rest := raw[len(head):]
	if fixed := requirements[code].FixedLen; fixed > 0 && len(head) > fixed {
		rest = string(protocol.Delimiter) + head[fixed:] + rest
	}
	return protocol.DecodeFields(rest)
}

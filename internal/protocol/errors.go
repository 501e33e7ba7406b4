package protocol

import "errors"

var ErrMalformedResponse = errors.New("protocol: malformed response")

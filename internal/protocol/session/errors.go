package session

import (
	"errors"
	"fmt"
)

var (
	ErrTransportUnavailable     = errors.New("session: transport unavailable")
	ErrHandshakeFailed          = errors.New("session: handshake failed")
	ErrInvalidCredentials       = errors.New("session: invalid credentials")
	ErrChecksumRequired         = errors.New("session: server requires checksums")
	ErrConnectionFailed         = errors.New("session: connection failed")
	ErrNotConnectedOrAuthorized = errors.New("session: not connected or authorized")
	ErrAlreadyOpen              = errors.New("session: connection already open")

	ErrNotConnected  = fmt.Errorf("%w: not connected", ErrNotConnectedOrAuthorized)
	ErrNotAuthorized = fmt.Errorf("%w: patron not authorized", ErrNotConnectedOrAuthorized)
)

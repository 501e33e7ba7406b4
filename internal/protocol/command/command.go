// Package command builds the request messages of each SIP2 operation.
//
// Builders are pure: every input, including the transaction timestamp,
// comes from the caller.
package command

import (
	"errors"
	"fmt"

	"github.com/danmuck/sip2ctl/internal/protocol"
)

var ErrInvalidParameter = errors.New("command: invalid operation parameter")

// DefaultProtocolVersion is sent in the SC status handshake.
const DefaultProtocolVersion = "2.00"

// Terminal identifies the self-check terminal issuing circulation commands.
type Terminal struct {
	Institution string
	Password    string
	Location    string
}

// HoldAction adds or removes a hold.
type HoldAction int

const (
	HoldAdd    HoldAction = 1
	HoldRemove HoldAction = -1
)

func (a HoldAction) mode() (string, error) {
	switch a {
	case HoldAdd:
		return "+", nil
	case HoldRemove:
		return "-", nil
	default:
		return "", fmt.Errorf("%w: hold action %d (want %d or %d)", ErrInvalidParameter, int(a), HoldAdd, HoldRemove)
	}
}

// ParseHoldAction maps "add"/"+" and "remove"/"-" to a HoldAction.
func ParseHoldAction(s string) (HoldAction, error) {
	switch s {
	case "add", "+", "1":
		return HoldAdd, nil
	case "remove", "-", "-1":
		return HoldRemove, nil
	default:
		return 0, fmt.Errorf("%w: hold action %q", ErrInvalidParameter, s)
	}
}

func field(tag, value string) protocol.Field {
	return protocol.Field{Tag: tag, Value: value}
}

// Login is the 93 message. Both algorithm fields are 0 (plain text).
func Login(username, password, location string) string {
	return protocol.EncodeMessage(protocol.CodeLogin, []string{"0", "0"},
		field(protocol.TagLoginUserID, username),
		field(protocol.TagLoginPassword, password),
		field(protocol.TagLocationCode, location),
	)
}

// Status is the 99 SC status message used as the post-login handshake:
// status 0 (ok), print width 030, then the protocol version.
func Status(version string) string {
	if version == "" {
		version = DefaultProtocolVersion
	}
	return protocol.EncodeMessage(protocol.CodeSCStatus, []string{"0", "030", version})
}

// PatronStatus is the 63 patron information request with language 001 and
// an empty summary.
func PatronStatus(term Terminal, ts, patron, patronPassword string) string {
	return protocol.EncodeMessage(protocol.CodePatronStatus, []string{"001", ts, "          "},
		field(protocol.TagInstitutionID, term.Institution),
		field(protocol.TagPatronID, patron),
		field(protocol.TagTerminalPass, term.Password),
		field(protocol.TagPatronPass, patronPassword),
		field(protocol.TagStartItem, ""),
		field(protocol.TagEndItem, ""),
	)
}

// Checkout is the 11 message: renewal policy Y, no-block N, and a blank
// due date so the ILS applies its own loan rules.
func Checkout(term Terminal, ts, patron, item string) string {
	return protocol.EncodeMessage(protocol.CodeCheckout, []string{"Y", "N", ts, protocol.BlankDate},
		field(protocol.TagInstitutionID, term.Institution),
		field(protocol.TagPatronID, patron),
		field(protocol.TagItemID, item),
		field(protocol.TagTerminalPass, term.Password),
	)
}

// Checkin is the 09 message. The transaction and return dates are both ts.
func Checkin(term Terminal, ts, item string) string {
	return protocol.EncodeMessage(protocol.CodeCheckin, []string{"N", ts, ts},
		field(protocol.TagCurrentLoc, term.Location),
		field(protocol.TagInstitutionID, term.Institution),
		field(protocol.TagItemID, item),
		field(protocol.TagTerminalPass, term.Password),
	)
}

// Hold is the 15 message.
func Hold(term Terminal, ts, patron, item string, action HoldAction) (string, error) {
	mode, err := action.mode()
	if err != nil {
		return "", err
	}
	return protocol.EncodeMessage(protocol.CodeHold, []string{mode, ts},
		field(protocol.TagInstitutionID, term.Institution),
		field(protocol.TagPatronID, patron),
		field(protocol.TagItemID, item),
		field(protocol.TagTerminalPass, term.Password),
	), nil
}

// Renew is the 29 message for one item: third party allowed Y, no-block Y,
// blank due date.
func Renew(term Terminal, ts, patron, item string) string {
	return protocol.EncodeMessage(protocol.CodeRenew, []string{"Y", "Y", ts, protocol.BlankDate},
		field(protocol.TagInstitutionID, term.Institution),
		field(protocol.TagPatronID, patron),
		field(protocol.TagItemID, item),
		field(protocol.TagTerminalPass, term.Password),
	)
}

// RenewAll is the 65 message.
func RenewAll(term Terminal, ts, patron string) string {
	return protocol.EncodeMessage(protocol.CodeRenewAll, []string{ts},
		field(protocol.TagInstitutionID, term.Institution),
		field(protocol.TagPatronID, patron),
		field(protocol.TagTerminalPass, term.Password),
	)
}

// EndSession is the 35 message.
func EndSession(term Terminal, ts, patron string) string {
	return protocol.EncodeMessage(protocol.CodeEndSession, []string{ts},
		field(protocol.TagInstitutionID, term.Institution),
		field(protocol.TagPatronID, patron),
		field(protocol.TagTerminalPass, term.Password),
	)
}

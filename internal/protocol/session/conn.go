package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/sip2ctl/internal/observability"
	"github.com/danmuck/sip2ctl/internal/protocol"
	"github.com/danmuck/sip2ctl/internal/protocol/command"
	"github.com/danmuck/sip2ctl/internal/protocol/frame"
	"github.com/danmuck/sip2ctl/internal/protocol/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle position of a Conn.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthorized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateAuthorized:
		return "authorized"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is one SIP2 session: transport, framing strategy and lifecycle state.
type Conn struct {
	id     string
	params ServerParameters
	cfg    Config
	framer frame.Framer
	link   *Link
	state  State
	patron string
	log    zerolog.Logger
}

// NewConn prepares a connection. Nothing is dialed until Open. The framing
// strategy is fixed here for the lifetime of the Conn.
func NewConn(params ServerParameters, cfg Config) *Conn {
	cfg = cfg.WithDefaults()
	id := uuid.NewString()
	return &Conn{
		id:     id,
		params: params,
		cfg:    cfg,
		framer: frame.New(cfg.Checksum, cfg.VerifyChecksum),
		state:  StateDisconnected,
		log:    observability.ConnLogger(id, params.Addr()),
	}
}

func (c *Conn) ID() string               { return c.id }
func (c *Conn) State() State             { return c.state }
func (c *Conn) Params() ServerParameters { return c.params }
func (c *Conn) ChecksumMode() frame.Mode { return c.framer.Mode() }

// Sequence is the checksum sequence counter the next command will carry.
func (c *Conn) Sequence() uint64 { return c.framer.Sequence() }

// OpenWith replaces the server parameters, then opens.
func (c *Conn) OpenWith(ctx context.Context, params ServerParameters) error {
	if c.link != nil {
		return ErrAlreadyOpen
	}
	c.params = params
	c.log = observability.ConnLogger(c.id, params.Addr())
	return c.Open(ctx)
}

// Open dials the server, logs in and runs the SC status handshake. On any
// failure the transport is released and the state is Disconnected.
func (c *Conn) Open(ctx context.Context) error {
	if c.link != nil {
		return ErrAlreadyOpen
	}
	if err := c.params.Validate(); err != nil {
		return err
	}

	addr := c.params.Addr()
	c.log.Info().Str("checksum", c.framer.Mode().String()).Msg("session.Open dialing")
	t, err := c.cfg.Dial(ctx, addr, c.cfg.ConnectTimeout)
	if err != nil {
		c.log.Error().Err(err).Msg("session.Open dial failed")
		c.setState(StateDisconnected)
		return fmt.Errorf("%w: dial %s: %w", ErrTransportUnavailable, addr, err)
	}
	c.link = NewLink(t, c.cfg, c.log)

	if err := c.login(); err != nil {
		c.log.Warn().Err(err).Msg("session.Open failed")
		c.release()
		c.setState(StateDisconnected)
		return err
	}
	c.setState(StateConnected)
	c.log.Info().Msg("session.Open connected")
	return nil
}

func (c *Conn) login() error {
	msg := command.Login(c.params.Username, c.params.Password, c.params.Location)
	resp, err := c.exchange(protocol.CodeLogin, msg)
	if err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(resp, protocol.CodeRequestResend):
		if c.framer.Mode() == frame.ModeChecksum {
			return fmt.Errorf("%w: server rejected login checksum", frame.ErrChecksumMismatch)
		}
		return ErrChecksumRequired
	case strings.HasPrefix(resp, protocol.StatusLoginInvalid):
		return ErrInvalidCredentials
	case strings.HasPrefix(resp, protocol.StatusLoginOK):
		return c.handshake()
	default:
		return fmt.Errorf("%w: unexpected login response %q", ErrConnectionFailed, resp)
	}
}

func (c *Conn) handshake() error {
	resp, err := c.exchange(protocol.CodeSCStatus, command.Status(c.cfg.ProtocolVersion))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	if resp == "" || resp == "0" {
		return fmt.Errorf("%w: empty acknowledgement", ErrHandshakeFailed)
	}
	return nil
}

// Close releases the transport and rewinds the sequence counter. Closing a
// Conn that holds no transport is ErrNotConnected.
func (c *Conn) Close() error {
	if c.link == nil {
		return ErrNotConnected
	}
	err := c.release()
	c.setState(StateClosed)
	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrTransportUnavailable, err)
	}
	c.log.Info().Msg("session.Close")
	return nil
}

func (c *Conn) release() error {
	var err error
	if c.link != nil {
		err = c.link.Close()
		c.link = nil
	}
	c.framer.Reset()
	return err
}

func (c *Conn) setState(s State) {
	if s != StateAuthorized {
		c.patron = ""
	}
	if s == c.state {
		return
	}
	observability.RecordTransition(c.state.String(), s.String())
	c.log.Debug().Str("from", c.state.String()).Str("to", s.String()).Msg("session state")
	c.state = s
}

func (c *Conn) require(s State) error {
	switch {
	case c.link == nil || c.state < StateConnected || c.state == StateClosed:
		return ErrNotConnected
	case s == StateAuthorized && c.state != StateAuthorized:
		return ErrNotAuthorized
	}
	return nil
}

// requirePatron is require(StateAuthorized) plus a check that patron is the
// barcode the session was authorized for.
func (c *Conn) requirePatron(patron string) error {
	if err := c.require(StateAuthorized); err != nil {
		return err
	}
	if patron != c.patron {
		return fmt.Errorf("%w: session authorized for another patron", ErrNotAuthorized)
	}
	return nil
}

// AuthorizedPatron is the barcode the session is authorized for, or empty.
func (c *Conn) AuthorizedPatron() string { return c.patron }

func (c *Conn) timestamp() string {
	return protocol.Timestamp(c.cfg.Clock())
}

// exchange frames msg, runs one round trip and verifies the response
// trailer when configured. A failed round trip leaves the stream out of step,
// so the transport is released and the Conn drops to Disconnected.
func (c *Conn) exchange(code, msg string) (string, error) {
	start := time.Now()
	resp, err := c.link.Exchange(c.framer.Frame(msg))
	if err != nil {
		observability.RecordExchange(code, observability.OutcomeTransport, time.Since(start))
		c.log.Warn().Err(err).Str("code", code).Msg("session link dropped")
		_ = c.release()
		c.setState(StateDisconnected)
		return "", err
	}
	if err := c.framer.Verify(resp); err != nil {
		observability.RecordExchange(code, observability.OutcomeChecksum, time.Since(start))
		return "", err
	}
	observability.RecordExchange(code, observability.OutcomeOK, time.Since(start))
	return resp, nil
}

// call is exchange for established sessions: a resend request from the
// server is reported as a checksum failure. The command is not resent.
func (c *Conn) call(code, msg string) (string, error) {
	resp, err := c.exchange(code, msg)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(resp, protocol.CodeRequestResend) {
		return "", fmt.Errorf("%w: server requested resend of %s", frame.ErrChecksumMismatch, code)
	}
	return resp, nil
}

// PatronStatus requests patron information and decodes it. It does not
// change the authorization state.
func (c *Conn) PatronStatus(barcode string) (*schema.Patron, error) {
	if err := c.require(StateConnected); err != nil {
		return nil, err
	}
	msg := command.PatronStatus(c.params.terminal(), c.timestamp(), barcode, "")
	resp, err := c.call(protocol.CodePatronStatus, msg)
	if err != nil {
		return nil, err
	}
	return schema.ParsePatron(resp)
}

// AuthorizeBarcode checks barcode against the ILS. The session becomes
// Authorized for barcode when the patron is not blocked and owes less than
// the fine limit; otherwise, or when the lookup fails, it drops back to
// Connected.
func (c *Conn) AuthorizeBarcode(barcode string) (bool, error) {
	p, err := c.PatronStatus(barcode)
	if err != nil {
		if c.state == StateAuthorized {
			c.setState(StateConnected)
		}
		return false, err
	}
	ok := p.CanCirculate()
	if ok {
		c.setState(StateAuthorized)
		c.patron = barcode
	} else {
		c.setState(StateConnected)
	}
	c.log.Info().Bool("authorized", ok).Str("fines", p.Fines.String()).Str("fine_limit", p.FineLimit.String()).Msg("session.AuthorizeBarcode")
	return ok, nil
}

// Checkout checks out each item to patron. Requires Authorized for patron.
func (c *Conn) Checkout(patron string, items ...string) ([]schema.Item, error) {
	if err := c.requirePatron(patron); err != nil {
		return nil, err
	}
	term := c.params.terminal()
	return c.items(protocol.CodeCheckout, protocol.CodeCheckoutResponse, items, func(item string) (string, error) {
		return command.Checkout(term, c.timestamp(), patron, item), nil
	})
}

// Checkin returns each item. Requires Connected.
func (c *Conn) Checkin(items ...string) ([]schema.Item, error) {
	if err := c.require(StateConnected); err != nil {
		return nil, err
	}
	term := c.params.terminal()
	return c.items(protocol.CodeCheckin, protocol.CodeCheckinResponse, items, func(item string) (string, error) {
		return command.Checkin(term, c.timestamp(), item), nil
	})
}

// Renew renews each item for patron. Requires Authorized for patron.
func (c *Conn) Renew(patron string, items ...string) ([]schema.Item, error) {
	if err := c.requirePatron(patron); err != nil {
		return nil, err
	}
	term := c.params.terminal()
	return c.items(protocol.CodeRenew, protocol.CodeRenewResponse, items, func(item string) (string, error) {
		return command.Renew(term, c.timestamp(), patron, item), nil
	})
}

// Hold places or removes a hold on item for patron. Requires Authorized
// for patron.
func (c *Conn) Hold(patron, item string, action command.HoldAction) (*schema.Item, error) {
	if err := c.requirePatron(patron); err != nil {
		return nil, err
	}
	msg, err := command.Hold(c.params.terminal(), c.timestamp(), patron, item, action)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(protocol.CodeHold, msg)
	if err != nil {
		return nil, err
	}
	return schema.ParseItem(protocol.CodeHoldResponse, resp)
}

// RenewAll renews every item patron has out. Requires Connected.
func (c *Conn) RenewAll(patron string) (bool, error) {
	if err := c.require(StateConnected); err != nil {
		return false, err
	}
	resp, err := c.call(protocol.CodeRenewAll, command.RenewAll(c.params.terminal(), c.timestamp(), patron))
	if err != nil {
		return false, err
	}
	return schema.ParseRenewAll(resp)
}

// EndSession ends the patron session on the ILS. A previously authorized
// session returns to Connected.
func (c *Conn) EndSession(patron string) (bool, error) {
	if err := c.require(StateConnected); err != nil {
		return false, err
	}
	resp, err := c.call(protocol.CodeEndSession, command.EndSession(c.params.terminal(), c.timestamp(), patron))
	if err != nil {
		return false, err
	}
	ended, err := schema.ParseEndSession(resp)
	if err != nil {
		return false, err
	}
	c.setState(StateConnected)
	return ended, nil
}

// items runs one exchange per barcode and stops at the first failure,
// returning the items decoded so far alongside the error.
func (c *Conn) items(code, respCode string, barcodes []string, build func(string) (string, error)) ([]schema.Item, error) {
	if len(barcodes) == 0 {
		return nil, fmt.Errorf("%w: no item barcodes", command.ErrInvalidParameter)
	}
	out := make([]schema.Item, 0, len(barcodes))
	for _, barcode := range barcodes {
		msg, err := build(barcode)
		if err != nil {
			return out, err
		}
		resp, err := c.call(code, msg)
		if err != nil {
			return out, err
		}
		it, err := schema.ParseItem(respCode, resp)
		if err != nil {
			return out, err
		}
		c.log.Debug().Str("code", code).Str("item", barcode).Bool("ok", it.SuccessfulTransaction).Msg("session item")
		out = append(out, *it)
	}
	return out, nil
}

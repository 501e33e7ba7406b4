package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/sip2ctl/internal/protocol"
	"github.com/danmuck/sip2ctl/internal/protocol/command"
	"github.com/danmuck/sip2ctl/internal/protocol/frame"
	"github.com/danmuck/sip2ctl/internal/testutil/testlog"
	"github.com/rs/zerolog"
)

const testTS = "20140124    110740"

// scriptedTransport answers the n-th written message with replies[n].
// Reads are served in chunks of at most chunk bytes.
type scriptedTransport struct {
	replies  []string
	written  []string
	pending  []byte
	chunk    int
	writeErr error
	closed   bool
}

func (s *scriptedTransport) Write(p []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.written = append(s.written, string(p))
	if len(s.replies) > 0 {
		s.pending = append(s.pending, s.replies[0]...)
		s.replies = s.replies[1:]
	}
	return len(p), nil
}

func (s *scriptedTransport) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		return 0, io.EOF
	}
	n := len(p)
	if s.chunk > 0 && n > s.chunk {
		n = s.chunk
	}
	n = copy(p[:n], s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *scriptedTransport) Close() error {
	s.closed = true
	return nil
}

func testParams() ServerParameters {
	return ServerParameters{
		Address:     "127.0.0.1",
		Port:        6001,
		Username:    "user",
		Password:    "pass",
		Location:    "desk1",
		Institution: "HUTL",
	}
}

func testConfig(t *scriptedTransport, mode frame.Mode) Config {
	cfg := DefaultConfig()
	cfg.Checksum = mode
	cfg.Dial = func(context.Context, string, time.Duration) (Transport, error) {
		return t, nil
	}
	cfg.Clock = func() time.Time {
		return time.Date(2014, 1, 24, 11, 7, 40, 0, time.Local)
	}
	return cfg
}

func openConn(t *testing.T, tr *scriptedTransport) *Conn {
	t.Helper()
	tr.replies = append([]string{"941\r", "98YYYNYN01200320140124    1107402.00AOHUTL|\r"}, tr.replies...)
	c := NewConn(testParams(), testConfig(tr, frame.ModeNone))
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	return c
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func patronReply(status string, fields ...string) string {
	return "64" + status + "001" + testTS + strings.Repeat("0000", 6) + strings.Join(fields, "|") + "|\r"
}

func TestOpenLoginAndHandshake(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{}
	c := openConn(t, tr)
	if c.State() != StateConnected {
		t.Fatalf("expected connected, got %s", c.State())
	}
	if len(tr.written) != 2 {
		t.Fatalf("expected login and status writes, got %d", len(tr.written))
	}
	if tr.written[0] != "9300CNuser|COpass|CPdesk1\r" {
		t.Fatalf("unexpected login %q", tr.written[0])
	}
	if tr.written[1] != "9900302.00\r" {
		t.Fatalf("unexpected status %q", tr.written[1])
	}
	if c.ID() == "" {
		t.Fatalf("expected connection id")
	}
}

func TestOpenLoginOutcomes(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name    string
		mode    frame.Mode
		replies []string
		want    error
	}{
		{"invalid credentials", frame.ModeNone, []string{"940\r"}, ErrInvalidCredentials},
		{"checksum required", frame.ModeNone, []string{"96\r"}, ErrChecksumRequired},
		{"checksum rejected", frame.ModeChecksum, []string{"96\r"}, frame.ErrChecksumMismatch},
		{"unexpected status", frame.ModeNone, []string{"XYZ\r"}, ErrConnectionFailed},
		{"empty handshake", frame.ModeNone, []string{"941\r", "\r"}, ErrHandshakeFailed},
		{"zero handshake", frame.ModeNone, []string{"941\r", "0\r"}, ErrHandshakeFailed},
		{"handshake transport", frame.ModeNone, []string{"941\r"}, ErrHandshakeFailed},
		{"login transport", frame.ModeNone, nil, ErrTransportUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &scriptedTransport{replies: tc.replies}
			c := NewConn(testParams(), testConfig(tr, tc.mode))
			err := c.Open(context.Background())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if c.State() != StateDisconnected {
				t.Fatalf("expected disconnected, got %s", c.State())
			}
			if !tr.closed {
				t.Fatalf("expected transport released")
			}
		})
	}
}

func TestOpenDialFailure(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Dial = func(context.Context, string, time.Duration) (Transport, error) {
		return nil, errors.New("connection refused")
	}
	c := NewConn(testParams(), cfg)
	if err := c.Open(context.Background()); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", c.State())
	}
}

func TestOpenRejectsInvalidParameters(t *testing.T) {
	testlog.Start(t)
	p := testParams()
	p.Password = "pa|ss"
	c := NewConn(p, testConfig(&scriptedTransport{}, frame.ModeNone))
	if err := c.Open(context.Background()); !errors.Is(err, ErrInvalidServerParameters) {
		t.Fatalf("expected ErrInvalidServerParameters, got %v", err)
	}
}

func TestOpenTwiceIsRejected(t *testing.T) {
	testlog.Start(t)
	c := openConn(t, &scriptedTransport{})
	if err := c.Open(context.Background()); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}
}

func TestChecksumModeFramesLogin(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{"941\r", "98YYYNYN\r"}}
	params := testParams()
	params.Location = ""
	c := NewConn(params, testConfig(tr, frame.ModeChecksum))
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if tr.written[0] != "9300CNuser|COpass|CP|AY0AZF72F\r" {
		t.Fatalf("unexpected framed login %q", tr.written[0])
	}
	if tr.written[1] != "9900302.00|AY1AZFC29\r" {
		t.Fatalf("unexpected framed status %q", tr.written[1])
	}
	if c.Sequence() != 2 {
		t.Fatalf("expected sequence 2, got %d", c.Sequence())
	}
}

func TestSequenceResetsOnCloseAndReopen(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{"941\r", "98Y\r"}}
	c := NewConn(testParams(), testConfig(tr, frame.ModeChecksum))
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
	if c.Sequence() != 0 {
		t.Fatalf("expected sequence reset, got %d", c.Sequence())
	}

	tr.replies = []string{"941\r", "98Y\r"}
	tr.written = nil
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	seq, err := frame.SequenceOf(strings.TrimSuffix(tr.written[0], "\r"))
	if err != nil || seq != 0 {
		t.Fatalf("expected reopened login with sequence 0, got %d (%v)", seq, err)
	}
}

func TestCloseWithoutOpen(t *testing.T) {
	testlog.Start(t)
	c := NewConn(testParams(), DefaultConfig())
	if err := c.Close(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestOperationsRequireState(t *testing.T) {
	testlog.Start(t)
	c := NewConn(testParams(), DefaultConfig())
	if _, err := c.Checkin("123"); !errors.Is(err, ErrNotConnectedOrAuthorized) {
		t.Fatalf("expected ErrNotConnectedOrAuthorized, got %v", err)
	}
	if _, err := c.PatronStatus("P001"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	tr := &scriptedTransport{}
	c = openConn(t, tr)
	writes := len(tr.written)
	if _, err := c.Checkout("P001", "123"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if _, err := c.Renew("P001", "123"); !errors.Is(err, ErrNotConnectedOrAuthorized) {
		t.Fatalf("expected ErrNotConnectedOrAuthorized, got %v", err)
	}
	if _, err := c.Hold("P001", "123", command.HoldAdd); !errors.Is(err, ErrNotConnectedOrAuthorized) {
		t.Fatalf("expected ErrNotConnectedOrAuthorized, got %v", err)
	}
	if len(tr.written) != writes {
		t.Fatalf("expected no I/O for rejected commands, got %d writes", len(tr.written)-writes)
	}
}

func TestAuthorizeBarcode(t *testing.T) {
	testlog.Start(t)
	blank := strings.Repeat(" ", 14)
	blocked := "Y" + strings.Repeat(" ", 13)
	cases := []struct {
		name  string
		reply string
		want  bool
	}{
		{"clean", patronReply(blank, "AOHUTL", "AAP001", "BLY", "BV0.00", "CC10.00"), true},
		{"fines at limit", patronReply(blank, "AOHUTL", "AAP001", "BV10.00", "CC10.00"), false},
		{"status blocked", patronReply(blocked, "AOHUTL", "AAP001", "BV0.00", "CC10.00"), false},
		{"invalid patron", patronReply(blank, "AOHUTL", "AAP001", "BLN", "BV0.00", "CC10.00"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &scriptedTransport{replies: []string{tc.reply}}
			c := openConn(t, tr)
			ok, err := c.AuthorizeBarcode("P001")
			if err != nil {
				t.Fatalf("authorize: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, ok)
			}
			want := StateConnected
			if tc.want {
				want = StateAuthorized
			}
			if c.State() != want {
				t.Fatalf("expected %s, got %s", want, c.State())
			}
			sent := tr.written[len(tr.written)-1]
			if !strings.HasPrefix(sent, "63001"+testTS) || !strings.Contains(sent, "AAP001|") {
				t.Fatalf("unexpected patron request %q", sent)
			}
		})
	}
}

func TestCheckoutAuthorized(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{
		patronReply(strings.Repeat(" ", 14), "AOHUTL", "AAP001", "BV0", "CC5"),
		"121NNY" + testTS + "AOHUTL|AAP001|AB30000012345|AJThe Title|AH20140207    235900|\r",
	}}
	c := openConn(t, tr)
	if ok, err := c.AuthorizeBarcode("P001"); err != nil || !ok {
		t.Fatalf("authorize: ok=%v err=%v", ok, err)
	}
	items, err := c.Checkout("P001", "30000012345")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	sent := tr.written[len(tr.written)-1]
	if !strings.HasPrefix(sent, "11YN"+testTS) {
		t.Fatalf("unexpected checkout %q", sent)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	it := items[0]
	if !it.SuccessfulTransaction || !it.Desensitize || it.SuccessfulRenewal {
		t.Fatalf("unexpected flags: %+v", it)
	}
	if it.Title != "The Title" || it.Barcode != "30000012345" || it.InstitutionID != "HUTL" {
		t.Fatalf("unexpected item: %+v", it)
	}
}

func TestFailedAuthorizationRevokesEarlierPatron(t *testing.T) {
	testlog.Start(t)
	blank := strings.Repeat(" ", 14)
	cases := []struct {
		name  string
		reply string
		want  error
	}{
		{"malformed fines", patronReply(blank, "AOHUTL", "AAP002", "BVabc", "CC10.00"), protocol.ErrMalformedResponse},
		{"resend request", "96\r", frame.ErrChecksumMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &scriptedTransport{replies: []string{
				patronReply(blank, "AOHUTL", "AAP001", "BLY", "BV0.00", "CC10.00"),
				tc.reply,
			}}
			c := openConn(t, tr)
			if ok, err := c.AuthorizeBarcode("P001"); err != nil || !ok {
				t.Fatalf("authorize P001: ok=%v err=%v", ok, err)
			}
			ok, err := c.AuthorizeBarcode("P002")
			if ok || !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got ok=%v err=%v", tc.want, ok, err)
			}
			if c.State() != StateConnected || c.AuthorizedPatron() != "" {
				t.Fatalf("expected connected with no patron, got %s %q", c.State(), c.AuthorizedPatron())
			}
			writes := len(tr.written)
			for _, patron := range []string{"P002", "P001"} {
				if _, err := c.Checkout(patron, "30000012345"); !errors.Is(err, ErrNotAuthorized) {
					t.Fatalf("checkout %s: expected ErrNotAuthorized, got %v", patron, err)
				}
			}
			if len(tr.written) != writes {
				t.Fatalf("expected no checkout sent, got %d writes", len(tr.written)-writes)
			}
		})
	}
}

func TestAuthorizationIsBoundToPatron(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{
		patronReply(strings.Repeat(" ", 14), "AOHUTL", "AAP001", "BV0", "CC5"),
		"36Y" + testTS + "AOHUTL|AAP001|\r",
	}}
	c := openConn(t, tr)
	if ok, err := c.AuthorizeBarcode("P001"); err != nil || !ok {
		t.Fatalf("authorize: ok=%v err=%v", ok, err)
	}
	if c.AuthorizedPatron() != "P001" {
		t.Fatalf("expected P001 authorized, got %q", c.AuthorizedPatron())
	}
	writes := len(tr.written)
	if _, err := c.Checkout("P999", "1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("checkout: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := c.Renew("P999", "1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("renew: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := c.Hold("P999", "1", command.HoldAdd); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("hold: expected ErrNotAuthorized, got %v", err)
	}
	if len(tr.written) != writes {
		t.Fatalf("expected no I/O for another patron, got %d writes", len(tr.written)-writes)
	}
	if _, err := c.EndSession("P001"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if c.AuthorizedPatron() != "" {
		t.Fatalf("expected patron cleared, got %q", c.AuthorizedPatron())
	}
}

func TestTransportFailureDropsSession(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{
		patronReply(strings.Repeat(" ", 14), "AOHUTL", "AAP001", "BV0", "CC5"),
	}}
	c := openConn(t, tr)
	if ok, err := c.AuthorizeBarcode("P001"); err != nil || !ok {
		t.Fatalf("authorize: ok=%v err=%v", ok, err)
	}
	if _, err := c.Checkout("P001", "itemA"); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
	if c.State() != StateDisconnected || !tr.closed {
		t.Fatalf("expected released and disconnected, got %s closed=%v", c.State(), tr.closed)
	}

	// A late reply to itemA must not be read as the answer to itemB.
	tr.pending = append(tr.pending, "121NNY"+testTS+"AOHUTL|AAP001|ABitemA|\r"...)
	writes := len(tr.written)
	if _, err := c.Checkout("P001", "itemB"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(tr.written) != writes {
		t.Fatalf("expected no write after drop, got %d", len(tr.written)-writes)
	}
	if err := c.Close(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected on close, got %v", err)
	}

	tr.pending = nil
	tr.closed = false
	tr.replies = []string{"941\r", "98Y\r"}
	if err := c.Open(context.Background()); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("expected connected after reopen, got %s", c.State())
	}
}

func TestCheckinBatchStopsAtFirstFailure(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{
		"101YNN" + testTS + "AOHUTL|AB1|\r",
		"10\r",
	}}
	c := openConn(t, tr)
	items, err := c.Checkin("1", "2", "3")
	if !errors.Is(err, protocol.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if len(items) != 1 || !items[0].SuccessfulTransaction {
		t.Fatalf("expected first item decoded, got %+v", items)
	}
	if _, err := c.Checkin(); !errors.Is(err, command.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestRenewAllAndEndSession(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{
		patronReply(strings.Repeat(" ", 14), "BV0", "CC5"),
		"661" + "0002" + "0000" + testTS + "AOHUTL|BMitem1|\r",
		"36Y" + testTS + "AOHUTL|AAP001|\r",
	}}
	c := openConn(t, tr)
	if _, err := c.AuthorizeBarcode("P001"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	ok, err := c.RenewAll("P001")
	if err != nil || !ok {
		t.Fatalf("renew all: ok=%v err=%v", ok, err)
	}
	ended, err := c.EndSession("P001")
	if err != nil || !ended {
		t.Fatalf("end session: ended=%v err=%v", ended, err)
	}
	if c.State() != StateConnected {
		t.Fatalf("expected connected after end session, got %s", c.State())
	}
}

func TestMidSessionResendIsChecksumError(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{"96\r"}}
	c := openConn(t, tr)
	if _, err := c.Checkin("123"); !errors.Is(err, frame.ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestLinkSplitReadsAndControlBytes(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{chunk: 3, replies: []string{"\x0098Y\x00NN\r\n", "941\r"}}
	cfg := DefaultConfig()
	link := NewLink(tr, cfg, testLogger())
	resp, err := link.Exchange("99")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp != "98YNN" {
		t.Fatalf("unexpected response %q", resp)
	}
	resp, err = link.Exchange("93")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if resp != "941" {
		t.Fatalf("expected trailing line feed dropped, got %q", resp)
	}
}

func TestLinkDiscardsBytesAfterTerminator(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{"941\r\n\n", "98Y\r"}}
	link := NewLink(tr, DefaultConfig(), testLogger())
	resp, err := link.Exchange("93")
	if err != nil || resp != "941" {
		t.Fatalf("exchange: resp=%q err=%v", resp, err)
	}
	if n := link.r.Buffered(); n != 0 {
		t.Fatalf("expected trailing bytes discarded, %d buffered", n)
	}
	if resp, err = link.Exchange("99"); err != nil || resp != "98Y" {
		t.Fatalf("exchange: resp=%q err=%v", resp, err)
	}
}

func TestLinkOversizedResponse(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{strings.Repeat("A", 64) + "\r"}}
	cfg := DefaultConfig()
	cfg.MaxResponseBytes = 16
	link := NewLink(tr, cfg, testLogger())
	if _, err := link.Exchange("99"); !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestLinkWriteFailure(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{writeErr: errors.New("broken pipe")}
	link := NewLink(tr, DefaultConfig(), testLogger())
	if _, err := link.Exchange("99"); !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestServerParametersValidate(t *testing.T) {
	testlog.Start(t)
	if err := testParams().Validate(); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
	p := testParams()
	p.Port = 0
	if err := p.Validate(); !errors.Is(err, ErrInvalidServerParameters) {
		t.Fatalf("expected ErrInvalidServerParameters, got %v", err)
	}
	p = testParams()
	p.Institution = ""
	if err := p.Validate(); err != nil {
		t.Fatalf("expected empty institution allowed, got %v", err)
	}
	if got := testParams().Addr(); got != "127.0.0.1:6001" {
		t.Fatalf("unexpected addr %q", got)
	}
}

func TestOpenRetryBacksOffOnTransportFailures(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{"941\r", "98Y\r"}}
	dials := 0
	cfg := testConfig(tr, frame.ModeNone)
	cfg.Backoff = BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 4 * time.Millisecond}
	cfg.Dial = func(context.Context, string, time.Duration) (Transport, error) {
		dials++
		if dials < 3 {
			return nil, errors.New("connection refused")
		}
		return tr, nil
	}
	c := NewConn(testParams(), cfg)
	if err := c.OpenRetry(context.Background(), 2); err != nil {
		t.Fatalf("open retry: %v", err)
	}
	if dials != 3 {
		t.Fatalf("expected 3 dials, got %d", dials)
	}
}

func TestOpenRetryStopsOnLoginRejection(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{"940\r"}}
	c := NewConn(testParams(), testConfig(tr, frame.ModeNone))
	if err := c.OpenRetry(context.Background(), 5); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(tr.written) != 1 {
		t.Fatalf("expected a single login attempt, got %d", len(tr.written))
	}
}

func TestOpenWithReplacesParameters(t *testing.T) {
	testlog.Start(t)
	tr := &scriptedTransport{replies: []string{"941\r", "98Y\r"}}
	var dialed string
	cfg := testConfig(tr, frame.ModeNone)
	cfg.Dial = func(_ context.Context, addr string, _ time.Duration) (Transport, error) {
		dialed = addr
		return tr, nil
	}
	c := NewConn(ServerParameters{}, cfg)
	p := testParams()
	p.Address = "ils.example.org"
	p.Username = "other"
	if err := c.OpenWith(context.Background(), p); err != nil {
		t.Fatalf("open with: %v", err)
	}
	if dialed != "ils.example.org:6001" {
		t.Fatalf("unexpected dial address %q", dialed)
	}
	if !strings.HasPrefix(tr.written[0], "9300CNother|") {
		t.Fatalf("expected new username in login, got %q", tr.written[0])
	}
	if c.Params().Address != "ils.example.org" {
		t.Fatalf("expected params replaced, got %+v", c.Params())
	}
}

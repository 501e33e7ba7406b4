package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/sip2ctl/internal/protocol"
)

var (
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	ErrChecksumMissing  = fmt.Errorf("%w: no checksum trailer", ErrChecksumMismatch)
)

// Mode selects the framing strategy of a connection.
type Mode int

const (
	ModeNone Mode = iota
	ModeChecksum
)

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeChecksum:
		return "checksum"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Framer turns a built command into what goes on the wire and checks what
// comes back. Implementations are fixed for the lifetime of a connection.
type Framer interface {
	Mode() Mode
	// Frame returns the wire form of msg, without the terminator.
	Frame(msg string) string
	// Verify checks the integrity trailer of an incoming response.
	Verify(resp string) error
	// Sequence is the counter the next framed message will carry. It grows
	// without bound until Reset; the AY value on the wire is Sequence modulo 10.
	Sequence() uint64
	// Reset rewinds the sequence counter to zero.
	Reset()
}

// New returns the Framer for mode. verify only applies to ModeChecksum.
func New(mode Mode, verify bool) Framer {
	if mode == ModeChecksum {
		return &Checksummed{verify: verify}
	}
	return Plain{}
}

// Plain passes messages through untouched.
type Plain struct{}

func (Plain) Mode() Mode              { return ModeNone }
func (Plain) Frame(msg string) string { return msg }
func (Plain) Verify(string) error     { return nil }
func (Plain) Sequence() uint64        { return 0 }
func (Plain) Reset()                  {}

// Checksummed appends AY<seq>AZ<checksum> to every message. Not safe for
// concurrent use; a connection owns exactly one.
type Checksummed struct {
	seq    uint64
	verify bool
}

func (c *Checksummed) Mode() Mode { return ModeChecksum }

// Frame appends the sequence and checksum trailer, then advances the counter.
// The AY field carries a single digit, so the wire value wraps modulo 10
// while Sequence keeps counting.
func (c *Checksummed) Frame(msg string) string {
	msg = strings.TrimSuffix(msg, string(protocol.Delimiter))
	body := msg + string(protocol.Delimiter) +
		protocol.TagSequence + strconv.FormatUint(c.seq%10, 10) +
		protocol.TagChecksum
	c.seq++
	return body + Checksum(body)
}

func (c *Checksummed) Verify(resp string) error {
	if !c.verify {
		return nil
	}
	return VerifyChecksum(resp)
}

func (c *Checksummed) Sequence() uint64 { return c.seq }

func (c *Checksummed) Reset() { c.seq = 0 }

// Checksum is the two's complement of the byte sum of s, truncated to 16
// bits and rendered as four upper-case hex digits.
func Checksum(s string) string {
	var sum uint16
	for i := 0; i < len(s); i++ {
		sum += uint16(s[i])
	}
	return fmt.Sprintf("%04X", ^sum+1)
}

// VerifyChecksum recomputes the checksum over resp up to and including the
// final AZ tag and compares it with the four characters that follow.
func VerifyChecksum(resp string) error {
	i := strings.LastIndex(resp, protocol.TagChecksum)
	if i < 0 || len(resp)-(i+2) < 4 {
		return ErrChecksumMissing
	}
	got := strings.ToUpper(resp[i+2 : i+6])
	want := Checksum(resp[:i+2])
	if got != want {
		return fmt.Errorf("%w: got %s want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}

// SequenceOf extracts the AY digit from a framed message.
func SequenceOf(msg string) (int, error) {
	seq, ok := protocol.DecodeFields(msg).Get(protocol.TagSequence)
	if !ok || len(seq) == 0 {
		return 0, fmt.Errorf("%w: no sequence field", protocol.ErrMalformedResponse)
	}
	i := strings.Index(seq, protocol.TagChecksum)
	if i >= 0 {
		seq = seq[:i]
	}
	n, err := strconv.Atoi(seq)
	if err != nil {
		return 0, fmt.Errorf("%w: sequence %q", protocol.ErrMalformedResponse, seq)
	}
	return n, nil
}

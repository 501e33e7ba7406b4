package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/danmuck/sip2ctl/internal/protocol"
	"github.com/rs/zerolog"
)

var ErrResponseTooLarge = fmt.Errorf("%w: response too large", protocol.ErrMalformedResponse)

// Transport is the byte stream under one connection.
type Transport interface {
	io.ReadWriteCloser
}

// deadliner is implemented by transports that support per-call timeouts,
// such as net.Conn.
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Dialer opens a Transport to addr.
type Dialer func(ctx context.Context, addr string, timeout time.Duration) (Transport, error)

// DialTCP is the default Dialer.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (Transport, error) {
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "tcp", addr)
}

// Link drives blocking request/response exchanges over one Transport.
type Link struct {
	t            Transport
	r            *bufio.Reader
	readTimeout  time.Duration
	writeTimeout time.Duration
	maxResponse  int
	debug        bool
	log          zerolog.Logger
}

func NewLink(t Transport, cfg Config, logger zerolog.Logger) *Link {
	cfg = cfg.WithDefaults()
	return &Link{
		t:            t,
		r:            bufio.NewReader(t),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		maxResponse:  cfg.MaxResponseBytes,
		debug:        cfg.Debug,
		log:          logger,
	}
}

// Exchange writes msg plus the terminator and blocks until one complete
// response arrives. Bytes already buffered past the terminator are discarded.
// The returned text has the terminator and any control bytes removed. Transport failures are returned as errors wrapping
// ErrTransportUnavailable.
func (l *Link) Exchange(msg string) (string, error) {
	if err := l.write(msg); err != nil {
		return "", err
	}
	resp, err := l.read()
	if err != nil {
		return "", err
	}
	return resp, nil
}

func (l *Link) write(msg string) error {
	if d, ok := l.t.(deadliner); ok && l.writeTimeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	}
	if l.debug {
		l.log.Debug().Msgf("-> %q", msg)
	}
	out := make([]byte, 0, len(msg)+1)
	out = append(out, msg...)
	out = append(out, protocol.Terminator)
	if _, err := l.t.Write(out); err != nil {
		return fmt.Errorf("%w: write: %w", ErrTransportUnavailable, err)
	}
	return nil
}

func (l *Link) read() (string, error) {
	if d, ok := l.t.(deadliner); ok && l.readTimeout > 0 {
		_ = d.SetReadDeadline(time.Now().Add(l.readTimeout))
	}
	var buf []byte
	for {
		chunk, err := l.r.ReadSlice(protocol.Terminator)
		buf = append(buf, chunk...)
		if l.maxResponse > 0 && len(buf) > l.maxResponse {
			return "", fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, l.maxResponse)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", fmt.Errorf("%w: read: %w", ErrTransportUnavailable, err)
	}
	// Exchanges are lockstep, so anything after the terminator is trailing
	// noise such as the LF of a CRLF pair.
	if n := l.r.Buffered(); n > 0 {
		_, _ = l.r.Discard(n)
	}
	resp := stripControl(buf[:len(buf)-1])
	if l.debug {
		l.log.Debug().Msgf("<- %q", resp)
	}
	return resp, nil
}

// stripControl drops NUL padding, stray line feeds and other ASCII control
// bytes some servers emit around responses.
func stripControl(b []byte) string {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c < 0x20 || c == 0x7f {
			continue
		}
		out = append(out, c)
	}
	return string(out)
}

func (l *Link) Close() error {
	return l.t.Close()
}

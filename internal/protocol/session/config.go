package session

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/sip2ctl/internal/protocol/command"
	"github.com/danmuck/sip2ctl/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport and framing behaviour of a Conn.
type Config struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Checksum selects the framing strategy once, at NewConn.
	Checksum frame.Mode
	// VerifyChecksum checks the AZ trailer of every response.
	VerifyChecksum bool
	// ProtocolVersion is sent in the SC status handshake.
	ProtocolVersion string
	// Debug echoes raw traffic at debug level.
	Debug bool
	// MaxResponseBytes bounds one response.
	MaxResponseBytes int

	Backoff BackoffConfig

	// Dial opens the transport. Nil means TCP.
	Dial Dialer
	// Clock stamps outgoing commands. Nil means time.Now.
	Clock func() time.Time
}

// DefaultConfig returns conservative timeouts and plain framing.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
		Checksum:         frame.ModeNone,
		ProtocolVersion:  command.DefaultProtocolVersion,
		MaxResponseBytes: 64 * 1024,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if strings.TrimSpace(c.ProtocolVersion) == "" {
		c.ProtocolVersion = def.ProtocolVersion
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = def.MaxResponseBytes
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.Dial == nil {
		c.Dial = DialTCP
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

var ErrInvalidServerParameters = errors.New("session: invalid server parameters")

// ServerParameters identify the ILS endpoint and the terminal credentials
// used for one connection attempt.
type ServerParameters struct {
	Address     string
	Port        int
	Username    string
	Password    string
	Location    string
	Institution string
}

func (p ServerParameters) Addr() string {
	return net.JoinHostPort(p.Address, strconv.Itoa(p.Port))
}

func (p ServerParameters) Validate() error {
	if strings.TrimSpace(p.Address) == "" {
		return fmt.Errorf("%w: missing address", ErrInvalidServerParameters)
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidServerParameters, p.Port)
	}
	if strings.TrimSpace(p.Username) == "" {
		return fmt.Errorf("%w: missing username", ErrInvalidServerParameters)
	}
	for name, v := range map[string]string{
		"username":    p.Username,
		"password":    p.Password,
		"location":    p.Location,
		"institution": p.Institution,
	} {
		if strings.ContainsAny(v, "|\r") {
			return fmt.Errorf("%w: %s contains a reserved character", ErrInvalidServerParameters, name)
		}
	}
	return nil
}

func (p ServerParameters) terminal() command.Terminal {
	return command.Terminal{
		Institution: p.Institution,
		Password:    p.Password,
		Location:    p.Location,
	}
}

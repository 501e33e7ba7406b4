package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/sip2ctl/internal/protocol/frame"
	"github.com/danmuck/sip2ctl/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Environment overrides applied after the file.
const (
	EnvServer      = "SIP_SERVER"
	EnvPort        = "SIP_PORT"
	EnvUser        = "SIP_USER"
	EnvPass        = "SIP_PASS"
	EnvLocation    = "SIP_LOCATION"
	EnvInstitution = "SIP_INSTITUTION"
	EnvChecksum    = "SIP_CHECKSUM"
	EnvProbeToken  = "SIP_PROBE_TOKEN"
)

// FileConfig is the on-disk shape of sipctl.toml.
type FileConfig struct {
	Server  ServerSection  `toml:"server"`
	Session SessionSection `toml:"session"`
	Probe   ProbeSection   `toml:"probe"`
}

type ServerSection struct {
	Address     string `toml:"address"`
	Port        int    `toml:"port"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	Location    string `toml:"location"`
	Institution string `toml:"institution"`
}

type SessionSection struct {
	Checksum         bool   `toml:"checksum"`
	VerifyChecksum   bool   `toml:"verify_checksum"`
	ProtocolVersion  string `toml:"protocol_version"`
	ConnectTimeout   string `toml:"connect_timeout"`
	ReadTimeout      string `toml:"read_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	MaxResponseBytes int    `toml:"max_response_bytes"`
	Debug            bool   `toml:"debug"`
	Retries          int    `toml:"retries"`
}

type ProbeSection struct {
	Addr        string   `toml:"addr"`
	Interval    string   `toml:"interval"`
	CorsOrigins []string `toml:"cors_origins"`
	Token       string   `toml:"token"`
}

// Config is the resolved client configuration.
type Config struct {
	Server  session.ServerParameters
	Session session.Config
	Retries int
	Probe   ProbeConfig
}

type ProbeConfig struct {
	Addr        string
	Interval    time.Duration
	CorsOrigins []string
	// Token, when set, is required as a bearer token on POST /check.
	Token string
}

// Default returns a configuration with no server and plain framing.
func Default() Config {
	return Config{
		Server:  session.ServerParameters{Port: 6001},
		Session: session.DefaultConfig(),
		Probe: ProbeConfig{
			Addr:     ":9400",
			Interval: 30 * time.Second,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw FileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("%w: unknown key %s in %s", ErrInvalidConfig, undecoded[0], path)
	}

	if meta.IsDefined("server", "address") {
		cfg.Server.Address = strings.TrimSpace(raw.Server.Address)
	}
	if meta.IsDefined("server", "port") {
		cfg.Server.Port = raw.Server.Port
	}
	if meta.IsDefined("server", "username") {
		cfg.Server.Username = raw.Server.Username
	}
	if meta.IsDefined("server", "password") {
		cfg.Server.Password = raw.Server.Password
	}
	if meta.IsDefined("server", "location") {
		cfg.Server.Location = raw.Server.Location
	}
	if meta.IsDefined("server", "institution") {
		cfg.Server.Institution = raw.Server.Institution
	}

	if meta.IsDefined("session", "checksum") {
		cfg.Session.Checksum = checksumMode(raw.Session.Checksum)
	}
	if meta.IsDefined("session", "verify_checksum") {
		cfg.Session.VerifyChecksum = raw.Session.VerifyChecksum
	}
	if meta.IsDefined("session", "protocol_version") {
		cfg.Session.ProtocolVersion = strings.TrimSpace(raw.Session.ProtocolVersion)
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.Session.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"read_timeout", raw.Session.ReadTimeout, &cfg.Session.ReadTimeout},
		{"write_timeout", raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
	} {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse session.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("session", "max_response_bytes") {
		cfg.Session.MaxResponseBytes = raw.Session.MaxResponseBytes
	}
	if meta.IsDefined("session", "debug") {
		cfg.Session.Debug = raw.Session.Debug
	}
	if meta.IsDefined("session", "retries") {
		cfg.Retries = raw.Session.Retries
	}

	if meta.IsDefined("probe", "addr") {
		cfg.Probe.Addr = strings.TrimSpace(raw.Probe.Addr)
	}
	if meta.IsDefined("probe", "interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Probe.Interval))
		if err != nil {
			return fmt.Errorf("parse probe.interval: %w", err)
		}
		cfg.Probe.Interval = d
	}
	if meta.IsDefined("probe", "cors_origins") {
		cfg.Probe.CorsOrigins = normalizeOrigins(raw.Probe.CorsOrigins)
	}
	if meta.IsDefined("probe", "token") {
		cfg.Probe.Token = strings.TrimSpace(raw.Probe.Token)
	}
	return nil
}

// ApplyEnv overrides the file from SIP_* variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvServer); ok && strings.TrimSpace(v) != "" {
		cfg.Server.Address = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, EnvPort, v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup(EnvUser); ok {
		cfg.Server.Username = v
	}
	if v, ok := lookup(EnvPass); ok {
		cfg.Server.Password = v
	}
	if v, ok := lookup(EnvLocation); ok {
		cfg.Server.Location = v
	}
	if v, ok := lookup(EnvInstitution); ok {
		cfg.Server.Institution = v
	}
	if v, ok := lookup(EnvChecksum); ok && strings.TrimSpace(v) != "" {
		on, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, EnvChecksum, v, err)
		}
		cfg.Session.Checksum = checksumMode(on)
	}
	if v, ok := lookup(EnvProbeToken); ok {
		cfg.Probe.Token = strings.TrimSpace(v)
	}
	return nil
}

// Validate checks everything a connection attempt needs.
func Validate(cfg Config) error {
	if err := cfg.Server.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrInvalidConfig)
	}
	if cfg.Session.MaxResponseBytes < 0 {
		return fmt.Errorf("%w: max_response_bytes must not be negative", ErrInvalidConfig)
	}
	if cfg.Probe.Interval < 0 {
		return fmt.Errorf("%w: probe interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

func checksumMode(on bool) frame.Mode {
	if on {
		return frame.ModeChecksum
	}
	return frame.ModeNone
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

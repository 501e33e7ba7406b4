package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/sip2ctl/internal/auth"
	"github.com/danmuck/sip2ctl/internal/config"
	"github.com/danmuck/sip2ctl/internal/logging"
	"github.com/danmuck/sip2ctl/internal/probe"
	"github.com/danmuck/sip2ctl/internal/protocol/command"
	"github.com/danmuck/sip2ctl/internal/protocol/frame"
	"github.com/danmuck/sip2ctl/internal/protocol/session"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var errUsage = errors.New("usage")

const usage = `usage: sipctl [flags] <command> [args]

commands:
  test                              open and close a session
  patron <barcode>                  patron information
  checkout <patron> <item>...       check items out to an authorized patron
  checkin <item>...                 check items in
  hold <patron> <item> <add|remove> place or remove a hold
  renew <patron> <item>...          renew items for an authorized patron
  renew-all <patron>                renew every item the patron has out
  end-session <patron>              end the patron session
  probe                             serve /health, /ready and /metrics with periodic checks

flags:
`

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "sipctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fl := flag.NewFlagSet("sipctl", flag.ContinueOnError)
	fl.SetOutput(stderr)
	fl.Usage = func() {
		fmt.Fprint(stderr, usage)
		fl.PrintDefaults()
	}
	configPath := fl.String("config", "", "path to sipctl.toml")
	envPath := fl.String("env", ".env", "dotenv file with SIP_* variables")
	checksum := fl.Bool("checksum", false, "frame commands with AY/AZ checksums")
	verify := fl.Bool("verify", false, "verify response checksums")
	retries := fl.Int("retries", -1, "retry transport failures on open (overrides config)")
	debug := fl.Bool("debug", false, "log raw SIP2 traffic")
	if err := fl.Parse(args); err != nil {
		return errUsage
	}
	if fl.NArg() == 0 {
		fl.Usage()
		return errUsage
	}

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", *envPath, err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *checksum {
		cfg.Session.Checksum = frame.ModeChecksum
	}
	if *verify {
		cfg.Session.VerifyChecksum = true
	}
	if *retries >= 0 {
		cfg.Retries = *retries
	}
	if *debug {
		cfg.Session.Debug = true
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	cmd, rest := fl.Arg(0), fl.Args()[1:]
	if cmd == "probe" {
		return runProbe(ctx, cfg)
	}
	op, ok := operations[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fl.Usage()
		return errUsage
	}
	if len(rest) < op.minArgs {
		fmt.Fprintf(stderr, "%s: expected at least %d argument(s)\n", cmd, op.minArgs)
		return errUsage
	}

	conn := session.NewConn(cfg.Server, cfg.Session)
	if err := conn.OpenRetry(ctx, cfg.Retries); err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, session.ErrNotConnected) {
			log.Warn().Err(err).Msg("sipctl close")
		}
	}()

	out, err := op.run(conn, rest)
	if err != nil {
		return err
	}
	return writeJSON(stdout, out)
}

type operation struct {
	minArgs int
	run     func(c *session.Conn, args []string) (any, error)
}

var operations = map[string]operation{
	"test": {0, func(c *session.Conn, _ []string) (any, error) {
		return map[string]any{"ok": true, "server": c.Params().Addr(), "checksum": c.ChecksumMode().String()}, nil
	}},
	"patron": {1, func(c *session.Conn, args []string) (any, error) {
		p, err := c.PatronStatus(args[0])
		if err != nil {
			return nil, err
		}
		return map[string]any{"patron": p, "can_circulate": p.CanCirculate()}, nil
	}},
	"checkout": {2, func(c *session.Conn, args []string) (any, error) {
		if err := authorize(c, args[0]); err != nil {
			return nil, err
		}
		return c.Checkout(args[0], args[1:]...)
	}},
	"checkin": {1, func(c *session.Conn, args []string) (any, error) {
		return c.Checkin(args...)
	}},
	"hold": {3, func(c *session.Conn, args []string) (any, error) {
		action, err := command.ParseHoldAction(args[2])
		if err != nil {
			return nil, err
		}
		if err := authorize(c, args[0]); err != nil {
			return nil, err
		}
		return c.Hold(args[0], args[1], action)
	}},
	"renew": {2, func(c *session.Conn, args []string) (any, error) {
		if err := authorize(c, args[0]); err != nil {
			return nil, err
		}
		return c.Renew(args[0], args[1:]...)
	}},
	"renew-all": {1, func(c *session.Conn, args []string) (any, error) {
		ok, err := c.RenewAll(args[0])
		return map[string]bool{"ok": ok}, err
	}},
	"end-session": {1, func(c *session.Conn, args []string) (any, error) {
		ended, err := c.EndSession(args[0])
		return map[string]bool{"ended": ended}, err
	}},
}

func authorize(c *session.Conn, patron string) error {
	ok, err := c.AuthorizeBarcode(patron)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("patron %s: %w", patron, session.ErrNotAuthorized)
	}
	return nil
}

func runProbe(ctx context.Context, cfg config.Config) error {
	p := probe.New("sipctl", cfg.Server, cfg.Session, cfg.Retries, cfg.Probe.CorsOrigins)
	if cfg.Probe.Token != "" {
		p.Guard = auth.StaticToken{Token: cfg.Probe.Token}
	}
	p.RegisterRoutes()
	go p.Run(ctx, cfg.Probe.Interval)
	log.Info().Str("addr", cfg.Probe.Addr).Str("server", cfg.Server.Addr()).Msg("sipctl probe listening")
	return p.Serve(ctx, cfg.Probe.Addr)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

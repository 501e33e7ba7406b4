// Package probe runs periodic SIP2 login checks against one server and
// exposes the result over HTTP for health checks and Prometheus scraping.
package probe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/sip2ctl/internal/auth"
	"github.com/danmuck/sip2ctl/internal/observability"
	"github.com/danmuck/sip2ctl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Result is the outcome of one check.
type Result struct {
	OK       bool          `json:"ok"`
	Checked  time.Time     `json:"checked"`
	Latency  time.Duration `json:"latency_ns"`
	Error    string        `json:"error,omitempty"`
	Sequence uint64        `json:"sequence"`
}

type Probe struct {
	ID       string
	Appeared time.Time
	// Guard protects POST /check. Nil leaves it open.
	Guard auth.Validator

	params  session.ServerParameters
	cfg     session.Config
	retries int

	mu   sync.RWMutex
	last *Result

	router *gin.Engine
}

// New builds a probe for params. Routes are registered by RegisterRoutes.
func New(id string, params session.ServerParameters, cfg session.Config, retries int, corsOrigins []string) *Probe {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	if origins := normalizeOrigins(corsOrigins); len(origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: origins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Probe{
		ID:       id,
		Appeared: time.Now(),
		params:   params,
		cfg:      cfg,
		retries:  retries,
		router:   r,
	}
}

func (p *Probe) HTTPRouter() *gin.Engine {
	return p.router
}

// Last returns the most recent result, if any check has run.
func (p *Probe) Last() (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}

// Check opens a session, then closes it.
func (p *Probe) Check(ctx context.Context) Result {
	start := time.Now()
	conn := session.NewConn(p.params, p.cfg)
	err := conn.OpenRetry(ctx, p.retries)
	res := Result{Checked: start, Sequence: conn.Sequence()}
	if err == nil {
		err = conn.Close()
	}
	res.Latency = time.Since(start)
	res.OK = err == nil
	if err != nil {
		res.Error = err.Error()
	}
	observability.RecordProbe(p.params.Addr(), res.OK)

	event := log.Info()
	if !res.OK {
		event = log.Warn().Err(err)
	}
	event.Str("probe", p.ID).Str("server", p.params.Addr()).Dur("latency", res.Latency).Msg("probe.Check")

	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()
	return res
}

// Run checks immediately and then every interval until ctx is done.
func (p *Probe) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		p.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Probe) RegisterRoutes() {
	p.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(p.Appeared).String(),
			"service": p.ID,
			"server":  p.params.Addr(),
		})
	})

	p.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	p.router.GET("/ready", func(c *gin.Context) {
		res, ok := p.Last()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": "no check has run"})
			return
		}
		status := http.StatusOK
		if !res.OK {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": res.OK, "last": res})
	})

	p.router.POST("/check", auth.Require(p.Guard), func(c *gin.Context) {
		res := p.Check(c.Request.Context())
		status := http.StatusOK
		if !res.OK {
			status = http.StatusBadGateway
		}
		c.JSON(status, res)
	})
}

// Serve runs the HTTP server on addr until ctx is done.
func (p *Probe) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: p.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
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

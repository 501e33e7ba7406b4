// Package siptest runs an in-process SIP2 server for tests.
package siptest

import (
	"bufio"
	"net"
	"strings"
	"sync"
	"testing"
)

// DefaultStatus answers the SC status handshake.
const DefaultStatus = "98YYYNYN01200320140124    1107402.00AOHUTL|BXYYYYYYYYYYYYYYYY|"

// Server answers each request by its two-character command code. Requests
// with no registered response are answered with Fallback, or dropped when
// Fallback is empty.
type Server struct {
	mu       sync.RWMutex
	l        net.Listener
	replies  map[string][]string
	received []string
	conns    map[net.Conn]struct{}
	Fallback string
	wg       sync.WaitGroup
}

// New starts a server on a loopback port that logs in any terminal and
// answers the status handshake. The server is closed with t.Cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("siptest listen: %v", err)
	}
	s := &Server{
		l:     l,
		conns: make(map[net.Conn]struct{}),
		replies: map[string][]string{
			"93": {"941"},
			"99": {DefaultStatus},
		},
	}
	s.wg.Add(1)
	go s.run()
	t.Cleanup(s.Close)
	return s
}

// Respond sets the reply for code. Several replies are served in order and
// the last one repeats.
func (s *Server) Respond(code string, replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[code] = replies
}

// Received returns every request read so far, without the terminator.
func (s *Server) Received() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.received...)
}

// Host and Port split the listener address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.l.Addr().String())
	return host
}

func (s *Server) Port() int {
	return s.l.Addr().(*net.TCPAddr).Port
}

func (s *Server) Addr() string { return s.l.Addr().String() }

func (s *Server) Close() {
	_ = s.l.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) run() {
	defer s.wg.Done()
	for {
		conn, err := s.l.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\r')
		if err != nil {
			return
		}
		msg := strings.TrimRight(line, "\r\n")
		reply, ok := s.next(msg)
		if !ok {
			return
		}
		if _, err := conn.Write([]byte(reply + "\r")); err != nil {
			return
		}
	}
}

func (s *Server) next(msg string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, msg)
	code := msg
	if len(code) > 2 {
		code = code[:2]
	}
	queue := s.replies[code]
	if len(queue) == 0 {
		return s.Fallback, s.Fallback != ""
	}
	reply := queue[0]
	if len(queue) > 1 {
		s.replies[code] = queue[1:]
	}
	return reply, true
}

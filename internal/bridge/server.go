package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dmitrijs2005/keeperbridge/internal/logging"
)

const (
	DefaultAddr        = "127.0.0.1:7654"
	DefaultConnTimeout = 5 * time.Second
	DefaultMaxSessions = 64
)

// ErrNotLoopback is returned for listen addresses that are reachable from
// other hosts.
var ErrNotLoopback = errors.New("listen address is not a loopback address")

// ErrServerStarted is returned by a second call to Run.
var ErrServerStarted = errors.New("bridge server already started")

// Server accepts connections on a loopback address and serves each one
// with a Handler.
type Server struct {
	addr        string
	handler     *Handler
	connTimeout time.Duration
	sessions    *semaphore.Weighted
	logger      logging.Logger

	ready    chan struct{}
	mu       sync.Mutex
	started  bool
	listener net.Listener
}

type ServerOption func(*Server)

// WithConnTimeout bounds a whole session, read and write included.
func WithConnTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.connTimeout = d }
}

// WithMaxSessions bounds the number of concurrently served connections.
func WithMaxSessions(n int64) ServerOption {
	return func(s *Server) { s.sessions = semaphore.NewWeighted(n) }
}

func NewServer(addr string, h *Handler, l logging.Logger, opts ...ServerOption) (*Server, error) {
	if err := CheckLoopback(addr); err != nil {
		return nil, err
	}
	s := &Server{
		addr:        addr,
		handler:     h,
		connTimeout: DefaultConnTimeout,
		sessions:    semaphore.NewWeighted(DefaultMaxSessions),
		logger:      l.With("module", "bridge_server"),
		ready:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckLoopback accepts "localhost" and loopback IP literals with a port.
func CheckLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%w: %q", ErrNotLoopback, addr)
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound address, or nil before Ready.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run listens and serves until ctx is cancelled. It then stops accepting,
// waits for in-flight sessions and returns nil. A Server runs at most once.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrServerStarted
	}
	s.started = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	if tcp, ok := ln.Addr().(*net.TCPAddr); !ok || !tcp.IP.IsLoopback() {
		ln.Close()
		return fmt.Errorf("%w: bound to %s", ErrNotLoopback, ln.Addr())
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info(ctx, "bridge listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	// sessions outlive shutdown until their deadline
	sessionCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := s.sessions.Acquire(ctx, 1); err != nil {
			break
		}
		conn, err := ln.Accept()
		if err != nil {
			s.sessions.Release(1)
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn(ctx, "accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.sessions.Release(1)
			newSession(conn, s.handler, s.connTimeout, s.logger).run(sessionCtx)
		}()
	}

	s.logger.Info(ctx, "bridge stopped accepting connections")
	return nil
}

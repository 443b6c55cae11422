package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/dmitrijs2005/keeperbridge/internal/logging"
	"github.com/dmitrijs2005/keeperbridge/internal/protocol"
)

type sessionState int

const (
	stateAwaitingRequest sessionState = iota
	stateDecoding
	stateDispatching
	stateEncoding
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingRequest:
		return "awaiting_request"
	case stateDecoding:
		return "decoding"
	case stateDispatching:
		return "dispatching"
	case stateEncoding:
		return "encoding"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// session is the lifecycle of one connection: read one request, write one
// response, close. The deadline covers the whole exchange.
type session struct {
	conn    net.Conn
	handler *Handler
	timeout time.Duration
	logger  logging.Logger
	state   sessionState
}

func newSession(conn net.Conn, h *Handler, timeout time.Duration, l logging.Logger) *session {
	return &session{
		conn:    conn,
		handler: h,
		timeout: timeout,
		logger:  l.With("remote", conn.RemoteAddr().String()),
		state:   stateAwaitingRequest,
	}
}

func (s *session) run(ctx context.Context) {
	defer s.close(ctx)

	if s.timeout > 0 {
		if err := s.conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
			s.logger.Warn(ctx, "failed to set deadline", "error", err)
			return
		}
	}

	s.state = stateDecoding
	frame, err := protocol.ReadFrame(s.conn)

	var resp protocol.Message
	switch {
	case err == nil:
		s.state = stateDispatching
		resp = s.handler.HandleFrame(ctx, frame)
	case errors.Is(err, protocol.ErrTooLarge):
		resp = s.handler.fail(ctx, "", protocol.CodeProtocolError, "message too large")
	case errors.Is(err, protocol.ErrMalformed):
		resp = s.handler.fail(ctx, "", protocol.CodeProtocolError, "malformed message")
	case errors.Is(err, io.EOF):
		s.logger.Debug(ctx, "client closed before sending a request")
		return
	case isTimeout(err):
		s.logger.Debug(ctx, "session timed out", "state", s.state)
		return
	default:
		s.logger.Debug(ctx, "read failed", "error", err)
		return
	}

	s.state = stateEncoding
	if err := protocol.Write(s.conn, resp); err != nil {
		s.logger.Debug(ctx, "write failed", "error", err)
	}
}

func (s *session) close(ctx context.Context) {
	s.state = stateClosed
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug(ctx, "close failed", "error", err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

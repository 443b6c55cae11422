package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxMessageSize bounds a single encoded request.
	MaxMessageSize = 64 << 10
	// MaxResponseSize bounds what a client accepts back. A login response
	// grows with the number of matching credentials.
	MaxResponseSize = 16 << 20
)

var (
	ErrMalformed   = errors.New("malformed message")
	ErrUnknownType = errors.New("unknown message type")
	ErrTooLarge    = errors.New("message too large")
)

// ReadFrame reads one JSON value from r. Bytes after the value are ignored.
// It returns io.EOF if r ends before any byte is read and ErrTooLarge if
// the value exceeds MaxMessageSize.
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r, MaxMessageSize)
}

func readFrame(r io.Reader, limit int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: limit + 1}
	dec := json.NewDecoder(bufio.NewReader(lr))

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if lr.N <= 0 {
			return nil, ErrTooLarge
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return nil, err
	}
	return raw, nil
}

// Decode parses one frame into its concrete message type. The returned
// Header is populated whenever the frame is a JSON object, even when the
// type is unknown, so errors can echo the request id.
func Decode(frame []byte) (Message, Header, error) {
	var h Header
	if err := json.Unmarshal(frame, &h); err != nil {
		return nil, Header{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Message
	switch h.Type {
	case TypeHandshake:
		msg = &Handshake{}
	case TypeHandshakeResponse:
		msg = &HandshakeResponse{}
	case TypeTestAssociate:
		msg = &TestAssociate{}
	case TypeAssociateResponse:
		msg = &AssociateResponse{}
	case TypeGetLogins:
		msg = &GetLogins{}
	case TypeLoginResponse:
		msg = &LoginResponse{}
	case TypeLock:
		msg = &Lock{}
	case TypeAck:
		msg = &Ack{}
	case TypeError:
		msg = &ErrorMessage{}
	default:
		return nil, h, fmt.Errorf("%w: %q", ErrUnknownType, h.Type)
	}

	if err := json.Unmarshal(frame, msg); err != nil {
		return nil, h, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return msg, h, nil
}

// Read reads and decodes one request-sized message.
func Read(r io.Reader) (Message, error) {
	return read(r, MaxMessageSize)
}

// ReadResponse is Read with the MaxResponseSize bound.
func ReadResponse(r io.Reader) (Message, error) {
	return read(r, MaxResponseSize)
}

func read(r io.Reader, limit int64) (Message, error) {
	frame, err := readFrame(r, limit)
	if err != nil {
		return nil, err
	}
	msg, _, err := Decode(frame)
	return msg, err
}

// Write encodes msg as a single newline-terminated JSON object. Size is
// not limited here; readers enforce their own bound.
func Write(w io.Writer, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.MessageType(), err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", msg.MessageType(), err)
	}
	return nil
}

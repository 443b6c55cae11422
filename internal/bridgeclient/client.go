// Package bridgeclient is the client half of the bridge protocol. Each call
// opens its own connection, sends one request and reads one response.
package bridgeclient

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/keeperbridge/internal/common"
	"github.com/dmitrijs2005/keeperbridge/internal/cryptox"
	"github.com/dmitrijs2005/keeperbridge/internal/protocol"
)

const defaultTimeout = 5 * time.Second

var (
	ErrUnavailable        = errors.New("bridge unavailable")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// ServerError is an error message returned by the bridge.
type ServerError struct {
	Code   protocol.ErrorCode
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("bridge error %s: %s", e.Code, e.Detail)
}

// IsCode reports whether err is a ServerError with the given code.
func IsCode(err error, code protocol.ErrorCode) bool {
	var se *ServerError
	return errors.As(err, &se) && se.Code == code
}

type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

func New(addr string) *Client {
	return &Client{addr: addr, timeout: defaultTimeout}
}

// WithTimeout returns a copy of c using d for each exchange.
func (c *Client) WithTimeout(d time.Duration) *Client {
	cp := *c
	cp.timeout = d
	return &cp
}

// Handshake returns the server id hash, which identifies the bridge
// instance across restarts.
func (c *Client) Handshake(ctx context.Context) (string, error) {
	resp, err := c.exchange(ctx, protocol.NewHandshake())
	if err != nil {
		return "", err
	}
	hr, ok := resp.(*protocol.HandshakeResponse)
	if !ok {
		return "", unexpected(resp)
	}
	return hr.ServerIDHash, nil
}

// Associate pairs a fresh client key using the shared secret and returns
// the new pairing id.
func (c *Client) Associate(ctx context.Context, sharedSecret []byte) (string, error) {
	key := cryptox.NewClientKey()
	defer common.WipeByteArray(key)
	return c.AssociateWithKey(ctx, key, sharedSecret)
}

func (c *Client) AssociateWithKey(ctx context.Context, clientKey, sharedSecret []byte) (string, error) {
	proof := cryptox.ProofMAC(clientKey, sharedSecret)
	req := protocol.NewTestAssociate(newRequestID(),
		base64.StdEncoding.EncodeToString(clientKey),
		base64.StdEncoding.EncodeToString(proof))

	resp, err := c.exchange(ctx, req)
	if err != nil {
		return "", err
	}
	ar, ok := resp.(*protocol.AssociateResponse)
	if !ok {
		return "", unexpected(resp)
	}
	return ar.PairingID, nil
}

// GetLogins returns the credentials matching url.
func (c *Client) GetLogins(ctx context.Context, url, pairingID string) ([]protocol.LoginEntry, error) {
	resp, err := c.exchange(ctx, protocol.NewGetLogins(newRequestID(), url, pairingID))
	if err != nil {
		return nil, err
	}
	lr, ok := resp.(*protocol.LoginResponse)
	if !ok {
		return nil, unexpected(resp)
	}
	return lr.Entries, nil
}

// Lock asks the bridge to lock the credential store.
func (c *Client) Lock(ctx context.Context, pairingID string) error {
	resp, err := c.exchange(ctx, protocol.NewLock(newRequestID(), pairingID))
	if err != nil {
		return err
	}
	if _, ok := resp.(*protocol.Ack); !ok {
		return unexpected(resp)
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, req protocol.Message) (protocol.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(dl); err != nil {
			return nil, err
		}
	}

	if err := protocol.Write(conn, req); err != nil {
		return nil, err
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", req.MessageType(), err)
	}

	if em, ok := resp.(*protocol.ErrorMessage); ok {
		return nil, &ServerError{Code: em.Code, Detail: em.Detail}
	}
	if req.ID() != "" && resp.ID() != req.ID() {
		return nil, fmt.Errorf("%w: request id %q, got %q", ErrUnexpectedResponse, req.ID(), resp.ID())
	}
	return resp, nil
}

func unexpected(resp protocol.Message) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedResponse, resp.MessageType())
}

func newRequestID() string {
	return uuid.NewString()
}

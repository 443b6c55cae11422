package bridge

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/keeperbridge/internal/cryptox"
	"github.com/dmitrijs2005/keeperbridge/internal/logging"
	"github.com/dmitrijs2005/keeperbridge/internal/pairing"
	"github.com/dmitrijs2005/keeperbridge/internal/protocol"
	"github.com/dmitrijs2005/keeperbridge/internal/vault"
)

func startServer(t *testing.T, h *Handler, opts ...ServerOption) (*Server, string) {
	t.Helper()
	s, err := NewServer("127.0.0.1:0", h, logging.Nop(), opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s, s.Addr().String()
}

func roundTrip(t *testing.T, addr string, req protocol.Message) protocol.Message {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.Write(conn, req))
	resp, err := protocol.ReadResponse(conn)
	require.NoError(t, err)
	return resp
}

func rawRoundTrip(t *testing.T, addr, payload string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, payload)
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	return line
}

func TestCheckLoopback(t *testing.T) {
	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"127.0.0.1:7654", false},
		{"127.1.2.3:7654", false},
		{"[::1]:7654", false},
		{"localhost:7654", false},
		{"0.0.0.0:7654", true},
		{":7654", true},
		{"192.168.1.10:7654", true},
		{"[::]:7654", true},
		{"example.com:7654", true},
		{"127.0.0.1", true},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			err := CheckLoopback(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := NewServer("0.0.0.0:7654", nil, logging.Nop())
	assert.ErrorIs(t, err, ErrNotLoopback)
}

func TestServer_Handshake(t *testing.T) {
	h := newTestHandler(t, newFakePairings(), &fakeVault{}, time.Now())
	_, addr := startServer(t, h)

	resp := roundTrip(t, addr, protocol.NewHandshake())

	hr, ok := resp.(*protocol.HandshakeResponse)
	require.Truef(t, ok, "got %T", resp)
	assert.Equal(t, testServerID, hr.ServerIDHash)
}

func TestServer_ProtocolErrorsKeepServing(t *testing.T) {
	h := newTestHandler(t, newFakePairings(), &fakeVault{}, time.Now())
	_, addr := startServer(t, h)

	line := rawRoundTrip(t, addr, `{"type":"teleport","requestId":"r1"}`+"\n")
	assert.Contains(t, line, `"code":"ProtocolError"`)
	assert.Contains(t, line, `"requestId":"r1"`)

	line = rawRoundTrip(t, addr, "{not json}\n")
	assert.Contains(t, line, `"code":"ProtocolError"`)

	_, ok := roundTrip(t, addr, protocol.NewHandshake()).(*protocol.HandshakeResponse)
	assert.True(t, ok, "server still serves after bad requests")
}

func TestServer_OversizedMessage(t *testing.T) {
	h := newTestHandler(t, newFakePairings(), &fakeVault{}, time.Now())
	_, addr := startServer(t, h)

	// exactly one byte over the limit, so the server consumes all of it
	prefix := `{"type":"getLogins","requestId":"r1","url":"`
	payload := prefix + strings.Repeat("a", protocol.MaxMessageSize+1-len(prefix))
	line := rawRoundTrip(t, addr, payload)
	assert.Contains(t, line, `"code":"ProtocolError"`)
}

func TestServer_LargeLoginResponse(t *testing.T) {
	rec := pairedRecord()
	creds := make([]vault.CredentialView, 300)
	for i := range creds {
		creds[i] = vault.CredentialView{
			Name:           fmt.Sprintf("site %d", i),
			Login:          "alice",
			Secret:         strings.Repeat("s", 250),
			OriginPatterns: []string{"example.com"},
		}
	}
	h := newTestHandler(t, newFakePairings(rec), vault.NewMemoryStore(creds...), time.Now())
	_, addr := startServer(t, h)

	resp := roundTrip(t, addr, protocol.NewGetLogins("big", "https://example.com", rec.ID))

	lr, ok := resp.(*protocol.LoginResponse)
	require.Truef(t, ok, "got %T", resp)
	assert.Equal(t, "big", lr.RequestID)
	assert.Len(t, lr.Entries, 300)
}

func TestServer_IdleConnectionClosedSilently(t *testing.T) {
	h := newTestHandler(t, newFakePairings(), &fakeVault{}, time.Now())
	_, addr := startServer(t, h, WithConnTimeout(100*time.Millisecond))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	b, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, b, "no response is sent on timeout")
}

func TestServer_ConcurrentClients(t *testing.T) {
	h := newTestHandler(t, newFakePairings(), &fakeVault{}, time.Now())
	_, addr := startServer(t, h, WithMaxSessions(4))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr)
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()
			if !assert.NoError(t, protocol.Write(conn, protocol.NewHandshake())) {
				return
			}
			resp, err := protocol.ReadResponse(conn)
			if assert.NoError(t, err) {
				assert.IsType(t, &protocol.HandshakeResponse{}, resp)
			}
		}()
	}
	wg.Wait()
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	h := newTestHandler(t, newFakePairings(), &fakeVault{}, time.Now())
	s, err := NewServer("127.0.0.1:0", h, logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-s.Ready()
	addr := s.Addr().String()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	_, err = net.DialTimeout("tcp", addr, time.Second)
	assert.Error(t, err, "listener is closed")
}

func TestServer_RunTwice(t *testing.T) {
	h := newTestHandler(t, newFakePairings(), &fakeVault{}, time.Now())
	s, _ := startServer(t, h)

	assert.ErrorIs(t, s.Run(context.Background()), ErrServerStarted)

	s2, err := NewServer("127.0.0.1:0", h, logging.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s2.Run(ctx))
	assert.ErrorIs(t, s2.Run(context.Background()), ErrServerStarted, "a stopped server is not restarted")
}

// Full flow against the SQLite pairing store: pair, fetch, lock, and a
// pairing that survives a store reopen.
func TestServer_PairingFlow(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "pairings.db")

	store, err := pairing.Open(ctx, dbPath)
	require.NoError(t, err)

	serverKey, err := store.ServerKey(ctx)
	require.NoError(t, err)
	serverID, err := cryptox.ServerIDHash(serverKey)
	require.NoError(t, err)

	v := vault.NewMemoryStore(vault.CredentialView{
		Name: "mail", Login: "alice", Secret: "pw", OriginPatterns: []string{"mail.example.com"},
	})
	h, err := NewHandler(store, v, []byte(testSecret), serverID, logging.Nop())
	require.NoError(t, err)
	_, addr := startServer(t, h)

	hr := roundTrip(t, addr, protocol.NewHandshake()).(*protocol.HandshakeResponse)
	assert.Equal(t, serverID, hr.ServerIDHash)

	key := cryptox.NewClientKey()
	ar, ok := roundTrip(t, addr, protocol.NewTestAssociate("a1",
		base64.StdEncoding.EncodeToString(key),
		base64.StdEncoding.EncodeToString(cryptox.ProofMAC(key, []byte(testSecret))))).(*protocol.AssociateResponse)
	require.True(t, ok)

	lr, ok := roundTrip(t, addr, protocol.NewGetLogins("g1", "https://mail.example.com/inbox", ar.PairingID)).(*protocol.LoginResponse)
	require.True(t, ok)
	require.Len(t, lr.Entries, 1)
	assert.Equal(t, "alice", lr.Entries[0].Login)

	_, ok = roundTrip(t, addr, protocol.NewLock("l1", ar.PairingID)).(*protocol.Ack)
	require.True(t, ok)
	assert.True(t, v.Locked())

	require.NoError(t, store.Close())
	reopened, err := pairing.Open(ctx, dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.Get(ctx, ar.PairingID)
	assert.NoError(t, err, "pairing persists across restarts")
	key2, err := reopened.ServerKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, serverKey, key2)
}

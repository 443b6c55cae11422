package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/keeperbridge/internal/common"
	"github.com/dmitrijs2005/keeperbridge/internal/cryptox"
	"github.com/dmitrijs2005/keeperbridge/internal/logging"
	"github.com/dmitrijs2005/keeperbridge/internal/origin"
	"github.com/dmitrijs2005/keeperbridge/internal/otp"
	"github.com/dmitrijs2005/keeperbridge/internal/pairing"
	"github.com/dmitrijs2005/keeperbridge/internal/protocol"
	"github.com/dmitrijs2005/keeperbridge/internal/vault"
)

// DefaultOTPMargin is the minimum validity a code must have left to be
// handed out.
const DefaultOTPMargin = 2 * time.Second

var (
	ErrNoSharedSecret = errors.New("shared secret is empty")
	ErrNoServerID     = errors.New("server id hash is empty")
)

// PairingStore is the part of the pairing repository the handler needs.
type PairingStore interface {
	Create(ctx context.Context, rec pairing.Record) error
	Get(ctx context.Context, id string) (*pairing.Record, error)
}

// Handler answers decoded requests. It is safe for concurrent use.
type Handler struct {
	pairings     PairingStore
	vault        vault.Store
	sharedSecret []byte
	serverIDHash string
	otpDefaults  otp.Params
	otpMargin    time.Duration
	now          func() time.Time
	logger       logging.Logger
}

type HandlerOption func(*Handler)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// WithOTPMargin sets the freshness margin for one-time codes.
func WithOTPMargin(d time.Duration) HandlerOption {
	return func(h *Handler) { h.otpMargin = d }
}

// WithOTPDefaults sets the parameters for seeds that do not carry their own.
func WithOTPDefaults(p otp.Params) HandlerOption {
	return func(h *Handler) { h.otpDefaults = p }
}

// NewHandler builds a Handler. An empty shared secret is rejected: it
// would make every associate request succeed.
func NewHandler(pairings PairingStore, store vault.Store, sharedSecret []byte, serverIDHash string, l logging.Logger, opts ...HandlerOption) (*Handler, error) {
	if len(sharedSecret) == 0 {
		return nil, ErrNoSharedSecret
	}
	if serverIDHash == "" {
		return nil, ErrNoServerID
	}
	h := &Handler{
		pairings:     pairings,
		vault:        store,
		sharedSecret: append([]byte(nil), sharedSecret...),
		serverIDHash: serverIDHash,
		otpDefaults:  otp.DefaultParams(),
		otpMargin:    DefaultOTPMargin,
		now:          time.Now,
		logger:       l.With("module", "bridge_handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.otpDefaults.Validate(); err != nil {
		return nil, err
	}
	if h.otpMargin < 0 {
		return nil, fmt.Errorf("otp margin %v: %w", h.otpMargin, common.ErrorInvalidArgument)
	}
	return h, nil
}

// HandleFrame decodes one raw request and answers it.
func (h *Handler) HandleFrame(ctx context.Context, frame []byte) protocol.Message {
	msg, hdr, err := protocol.Decode(frame)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			return h.fail(ctx, hdr.RequestID, protocol.CodeProtocolError, "unknown message type")
		}
		return h.fail(ctx, hdr.RequestID, protocol.CodeProtocolError, "malformed message")
	}
	return h.Handle(ctx, msg)
}

// Handle dispatches a decoded request and always returns a response.
func (h *Handler) Handle(ctx context.Context, msg protocol.Message) protocol.Message {
	if v := versionOf(msg); v != 0 && v != protocol.Version {
		return h.fail(ctx, msg.ID(), protocol.CodeUnsupportedVersion, fmt.Sprintf("protocol version %d is not supported", v))
	}

	switch m := msg.(type) {
	case *protocol.Handshake:
		return protocol.NewHandshakeResponse(h.serverIDHash)
	case *protocol.TestAssociate:
		return h.associate(ctx, m)
	case *protocol.GetLogins:
		return h.getLogins(ctx, m)
	case *protocol.Lock:
		return h.lock(ctx, m)
	default:
		return h.fail(ctx, msg.ID(), protocol.CodeProtocolError, fmt.Sprintf("%s is not a request", msg.MessageType()))
	}
}

func (h *Handler) associate(ctx context.Context, m *protocol.TestAssociate) protocol.Message {
	if m.RequestID == "" {
		return h.fail(ctx, "", protocol.CodeInvalidRequest, "requestId is required")
	}
	clientKey, err := base64.StdEncoding.DecodeString(m.ClientKey)
	if err != nil || len(clientKey) < cryptox.MinClientKeySize {
		return h.fail(ctx, m.RequestID, protocol.CodeInvalidRequest, "clientKey must be base64 of at least 16 bytes")
	}
	defer common.WipeByteArray(clientKey)

	keyHash, err := base64.StdEncoding.DecodeString(m.KeyHash)
	if err != nil || len(keyHash) == 0 {
		return h.fail(ctx, m.RequestID, protocol.CodeInvalidRequest, "keyHash must be non-empty base64")
	}

	expected := cryptox.ProofMAC(clientKey, h.sharedSecret)
	if !cryptox.Equal(expected, keyHash) {
		return h.fail(ctx, m.RequestID, protocol.CodePairingRejected, "pairing rejected")
	}

	rec := pairing.NewRecord(clientKey, h.now())
	if err := h.pairings.Create(ctx, rec); err != nil {
		h.logger.Error(ctx, "failed to store pairing", "error", err)
		return h.fail(ctx, m.RequestID, protocol.CodeInternalError, "could not store pairing")
	}

	h.logger.Info(ctx, "client paired", "pairing_id", rec.ID)
	return protocol.NewAssociateResponse(m.RequestID, rec.ID)
}

func (h *Handler) getLogins(ctx context.Context, m *protocol.GetLogins) protocol.Message {
	if m.RequestID == "" {
		return h.fail(ctx, "", protocol.CodeInvalidRequest, "requestId is required")
	}
	if resp := h.authorize(ctx, m.RequestID, m.PairingID); resp != nil {
		return resp
	}
	if m.URL == "" {
		return h.fail(ctx, m.RequestID, protocol.CodeInvalidRequest, "url is required")
	}
	if _, err := origin.NormalizeHost(m.URL); err != nil {
		return h.fail(ctx, m.RequestID, protocol.CodeInvalidRequest, "url has no usable host")
	}

	creds, err := h.vault.ListAll(ctx)
	if err != nil {
		h.logger.Error(ctx, "credential store unavailable", "error", err)
		return h.fail(ctx, m.RequestID, protocol.CodeInternalError, "credential store unavailable")
	}

	entries := h.matchingEntries(ctx, m.URL, creds)
	h.logger.Info(ctx, "logins served", "pairing_id", m.PairingID, "matched", len(entries))
	return protocol.NewLoginResponse(m.RequestID, entries)
}

// matchingEntries filters creds by origin and attaches fresh codes. A
// credential whose seed cannot be decoded is left out entirely.
func (h *Handler) matchingEntries(ctx context.Context, url string, creds []vault.CredentialView) []protocol.LoginEntry {
	now := h.now()
	entries := make([]protocol.LoginEntry, 0, len(creds))

	for _, c := range creds {
		if !origin.Match(url, c.OriginPatterns) {
			continue
		}
		entry := protocol.LoginEntry{Name: c.Name, Login: c.Login, Secret: c.Secret}

		if c.OTPSeed != "" {
			key, err := otp.ParseKey(c.OTPSeed, h.otpDefaults)
			if err != nil {
				h.logger.Warn(ctx, "skipping credential with unusable otp seed", "name", c.Name, "error", err)
				continue
			}
			code, err := key.Generate(now)
			if err != nil {
				h.logger.Warn(ctx, "skipping credential, otp generation failed", "name", c.Name, "error", err)
				continue
			}
			if code.FreshFor(h.otpMargin) {
				entry.OTPCode = code.Value
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func (h *Handler) lock(ctx context.Context, m *protocol.Lock) protocol.Message {
	if m.RequestID == "" {
		return h.fail(ctx, "", protocol.CodeInvalidRequest, "requestId is required")
	}
	if resp := h.authorize(ctx, m.RequestID, m.PairingID); resp != nil {
		return resp
	}
	if err := h.vault.Lock(ctx); err != nil {
		h.logger.Error(ctx, "credential store lock failed", "error", err)
		return h.fail(ctx, m.RequestID, protocol.CodeInternalError, "lock failed")
	}
	h.logger.Info(ctx, "vault locked by client", "pairing_id", m.PairingID)
	return protocol.NewAck(m.RequestID)
}

// authorize returns nil when pairingID names a stored pairing, and the
// error response to send otherwise.
func (h *Handler) authorize(ctx context.Context, requestID, pairingID string) protocol.Message {
	if pairingID == "" {
		return h.fail(ctx, requestID, protocol.CodeNotPaired, "pairingId is required")
	}
	if _, err := h.pairings.Get(ctx, pairingID); err != nil {
		if errors.Is(err, pairing.ErrNotFound) {
			return h.fail(ctx, requestID, protocol.CodeNotPaired, "unknown pairing")
		}
		h.logger.Error(ctx, "pairing lookup failed", "error", err)
		return h.fail(ctx, requestID, protocol.CodeInternalError, "pairing lookup failed")
	}
	return nil
}

// fail builds an error response. Details are fixed strings and never carry
// request material.
func (h *Handler) fail(ctx context.Context, requestID string, code protocol.ErrorCode, detail string) protocol.Message {
	h.logger.Warn(ctx, "request failed", "request_id", requestID, "code", code)
	return protocol.NewError(requestID, code, detail)
}

func versionOf(msg protocol.Message) int {
	if v, ok := msg.(interface{ ProtocolVersion() int }); ok {
		return v.ProtocolVersion()
	}
	return 0
}

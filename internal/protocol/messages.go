// Package protocol defines the JSON messages exchanged between the bridge
// and its clients, and their wire encoding.
//
// Every message is a flat JSON object with a "type" discriminator. All
// messages except handshake and handshakeResponse carry a "requestId"
// that the response echoes back.
package protocol

// Version is the protocol version this package speaks.
const Version = 1

// Type is the message discriminator.
type Type string

const (
	TypeHandshake         Type = "handshake"
	TypeHandshakeResponse Type = "handshakeResponse"
	TypeTestAssociate     Type = "testAssociate"
	TypeAssociateResponse Type = "associateResponse"
	TypeGetLogins         Type = "getLogins"
	TypeLoginResponse     Type = "loginResponse"
	TypeLock              Type = "lock"
	TypeAck               Type = "ack"
	TypeError             Type = "error"
)

// ErrorCode classifies an ErrorMessage.
type ErrorCode string

const (
	CodeProtocolError      ErrorCode = "ProtocolError"
	CodePairingRejected    ErrorCode = "PairingRejected"
	CodeNotPaired          ErrorCode = "NotPaired"
	CodeInvalidRequest     ErrorCode = "InvalidRequest"
	CodeInternalError      ErrorCode = "InternalError"
	CodeUnsupportedVersion ErrorCode = "UnsupportedVersion"
	// CodeTimeout is never sent; a timed-out connection is closed silently.
	CodeTimeout ErrorCode = "Timeout"
)

// Message is implemented by every message variant.
type Message interface {
	MessageType() Type
	ID() string
}

// Header holds the fields common to all messages.
type Header struct {
	Type      Type   `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	// Version is optional on requests; zero means "current".
	Version int `json:"version,omitempty"`
}

func (h Header) MessageType() Type { return h.Type }
func (h Header) ID() string        { return h.RequestID }

// ProtocolVersion returns the requested version, zero when absent.
func (h Header) ProtocolVersion() int { return h.Version }

type Handshake struct {
	Header
}

type HandshakeResponse struct {
	Header
	ServerIDHash string `json:"serverIdHash"`
}

// TestAssociate proves knowledge of the shared secret. ClientKey and
// KeyHash are standard base64.
type TestAssociate struct {
	Header
	ClientKey string `json:"clientKey"`
	KeyHash   string `json:"keyHash"`
}

type AssociateResponse struct {
	Header
	PairingID string `json:"pairingId"`
}

type GetLogins struct {
	Header
	URL       string `json:"url"`
	PairingID string `json:"pairingId"`
}

// LoginEntry is one credential returned to the client.
type LoginEntry struct {
	Name    string `json:"name"`
	Login   string `json:"login"`
	Secret  string `json:"secret"`
	OTPCode string `json:"otpCode,omitempty"`
}

type LoginResponse struct {
	Header
	Entries []LoginEntry `json:"entries"`
}

type Lock struct {
	Header
	PairingID string `json:"pairingId"`
}

type Ack struct {
	Header
}

type ErrorMessage struct {
	Header
	Code   ErrorCode `json:"code"`
	Detail string    `json:"detail"`
}

func NewHandshake() *Handshake {
	return &Handshake{Header: Header{Type: TypeHandshake}}
}

func NewHandshakeResponse(serverIDHash string) *HandshakeResponse {
	return &HandshakeResponse{Header: Header{Type: TypeHandshakeResponse}, ServerIDHash: serverIDHash}
}

func NewTestAssociate(requestID, clientKey, keyHash string) *TestAssociate {
	return &TestAssociate{Header: Header{Type: TypeTestAssociate, RequestID: requestID}, ClientKey: clientKey, KeyHash: keyHash}
}

func NewAssociateResponse(requestID, pairingID string) *AssociateResponse {
	return &AssociateResponse{Header: Header{Type: TypeAssociateResponse, RequestID: requestID}, PairingID: pairingID}
}

func NewGetLogins(requestID, url, pairingID string) *GetLogins {
	return &GetLogins{Header: Header{Type: TypeGetLogins, RequestID: requestID}, URL: url, PairingID: pairingID}
}

// NewLoginResponse never encodes entries as null.
func NewLoginResponse(requestID string, entries []LoginEntry) *LoginResponse {
	if entries == nil {
		entries = []LoginEntry{}
	}
	return &LoginResponse{Header: Header{Type: TypeLoginResponse, RequestID: requestID}, Entries: entries}
}

func NewLock(requestID, pairingID string) *Lock {
	return &Lock{Header: Header{Type: TypeLock, RequestID: requestID}, PairingID: pairingID}
}

func NewAck(requestID string) *Ack {
	return &Ack{Header: Header{Type: TypeAck, RequestID: requestID}}
}

func NewError(requestID string, code ErrorCode, detail string) *ErrorMessage {
	return &ErrorMessage{Header: Header{Type: TypeError, RequestID: requestID}, Code: code, Detail: detail}
}

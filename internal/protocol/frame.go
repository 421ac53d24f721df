// Package protocol defines the JSON wire frames exchanged between client
// and relay, the typed payload carried by each frame type, and the
// newline-delimited framing that puts them on a TCP stream.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veil/internal/domain"
)

// Version is the protocol tag every frame must carry.
const Version = "v1.0"

// MessageType discriminates the payload carried in a frame's data field.
type MessageType string

const (
	TypeRegister       MessageType = "register"
	TypeLogin          MessageType = "login"
	TypeLogout         MessageType = "logout"
	TypeKeyExchange    MessageType = "key_exchange"
	TypeDirectMessage  MessageType = "direct_message"
	TypeOnlineUsers    MessageType = "online_users"
	TypeContactRequest MessageType = "contact_request"
	TypeContactAccept  MessageType = "contact_accept"
	TypeSecurityAlert  MessageType = "security_alert"
	TypeError          MessageType = "error"
	TypeSuccess        MessageType = "success"
)

// Frame is one wire message. Data holds the type-specific payload and is
// decoded exactly once, at the transport boundary, via DecodePayload.
type Frame struct {
	Protocol  string          `json:"protocol"`
	MessageID string          `json:"message_id"`
	Type      MessageType     `json:"type"`
	Sender    string          `json:"sender,omitempty"`
	Receiver  string          `json:"receiver,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Signature []byte          `json:"signature,omitempty"`
}

// NewFrame builds a frame around a typed payload.
func NewFrame(t MessageType, sender, receiver string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Frame{
		Protocol:  Version,
		MessageID: "veil_" + uuid.NewString(),
		Type:      t,
		Sender:    sender,
		Receiver:  receiver,
		Timestamp: time.Now().Unix(),
		Data:      data,
	}, nil
}

// MustFrame is NewFrame for payloads that cannot fail to marshal.
func MustFrame(t MessageType, sender, receiver string, payload any) Frame {
	f, err := NewFrame(t, sender, receiver, payload)
	if err != nil {
		panic(err)
	}
	return f
}

// ErrorFrame builds the protocol error response the relay sends back to a
// misbehaving or unlucky sender.
func ErrorFrame(receiver, msg string) Frame {
	return MustFrame(TypeError, "", receiver, ErrorPayload{Error: msg})
}

// DecodePayload decodes a frame's data into its typed payload.
func DecodePayload(f Frame) (any, error) {
	switch f.Type {
	case TypeRegister:
		return decode[RegisterRequest](f)
	case TypeLogin:
		return decode[LoginRequest](f)
	case TypeLogout:
		return decode[LogoutRequest](f)
	case TypeKeyExchange:
		return decode[KeyExchange](f)
	case TypeDirectMessage:
		return decode[DirectMessage](f)
	case TypeOnlineUsers:
		return decode[OnlineUsers](f)
	case TypeContactRequest:
		return decode[ContactRequest](f)
	case TypeContactAccept:
		return decode[ContactAccept](f)
	case TypeSecurityAlert:
		return decode[SecurityAlert](f)
	case TypeError:
		return decode[ErrorPayload](f)
	case TypeSuccess:
		return decode[SuccessPayload](f)
	default:
		return nil, fmt.Errorf("unknown message type %q", f.Type)
	}
}

func decode[T any](f Frame) (T, error) {
	var out T
	if len(f.Data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(f.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return out, nil
}

// Payloads, one per message type.

// RegisterRequest creates an account and opens a connection entry.
type RegisterRequest struct {
	Username     string                `json:"username"`
	DisplayName  string                `json:"display_name,omitempty"`
	PublicKey    domain.PublicIdentity `json:"public_key"`
	Password     string                `json:"password"`
	SecurityTier domain.SecurityTier   `json:"security_tier"`
}

// LoginRequest authenticates by password or resumes by session token.
type LoginRequest struct {
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
}

// LogoutRequest closes the session.
type LogoutRequest struct {
	SessionToken string `json:"session_token,omitempty"`
}

// KeyExchange asks the relay to forward a public key offer to a peer. The
// relay never interprets the key material.
type KeyExchange struct {
	TargetUser string                `json:"target_user"`
	PublicKey  domain.PublicIdentity `json:"public_key"`
	Algorithm  string                `json:"algorithm,omitempty"`
}

// DirectMessage carries an opaque envelope to the frame's receiver.
type DirectMessage struct {
	EncryptedData domain.Envelope `json:"encrypted_data"`
	MessageType   string          `json:"message_type,omitempty"`
}

// OnlineUsers is the presence list pushed to every live connection.
type OnlineUsers struct {
	Users       []domain.OnlineUser `json:"users"`
	TotalOnline int                 `json:"total_online"`
	ServerTime  string              `json:"server_time,omitempty"`
}

// ContactRequest asks a peer to exchange keys and fingerprints.
type ContactRequest struct {
	TargetUser        string `json:"target_user"`
	RequestID         string `json:"request_id,omitempty"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
	Message           string `json:"message,omitempty"`
}

// ContactAccept answers a ContactRequest.
type ContactAccept struct {
	TargetUser string `json:"target_user"`
	RequestID  string `json:"request_id,omitempty"`
}

// SecurityAlert is an out-of-band warning surfaced to the user.
type SecurityAlert struct {
	AlertID        string `json:"alert_id"`
	Kind           string `json:"type"`
	Description    string `json:"description"`
	Severity       string `json:"severity"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ErrorPayload reports a relay-side failure to the sender.
type ErrorPayload struct {
	Error string `json:"error"`
}

// SuccessPayload acknowledges an operation.
type SuccessPayload struct {
	Message      string `json:"message,omitempty"`
	Status       string `json:"status,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	SessionToken string `json:"session_token,omitempty"`
	MessageID    string `json:"message_id,omitempty"`
	OnlineUsers  int    `json:"online_users,omitempty"`
}

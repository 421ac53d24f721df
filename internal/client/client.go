// Package client implements the veil client engine: it owns the local key
// material, encrypts and decrypts envelopes, and speaks the relay
// protocol over a TCP (optionally TLS) connection.
//
// One goroutine drains the socket and dispatches inbound frames; sends
// are decoupled from it. Key generation and AEAD work are synchronous and
// CPU-bound, fast relative to the network, so they run inline.
package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"veil/internal/crypto"
	"veil/internal/domain"
	"veil/internal/envelope"
	"veil/internal/keymgr"
	"veil/internal/protocol"
	"veil/internal/ratchet"
	"veil/internal/trust"
)

// ErrNotConnected is returned by operations that need a live relay
// connection.
var ErrNotConnected = errors.New("not connected to a relay")

// replyTimeout bounds how long a request waits for the relay's ack.
const replyTimeout = 15 * time.Second

// Handlers are the callbacks the engine invokes from its reader
// goroutine. Nil handlers are skipped.
type Handlers struct {
	OnMessage        func(from, text string, messageID string)
	OnPresence       func(users []domain.OnlineUser)
	OnKeyExchange    func(from string, rec domain.TrustedKeyRecord)
	OnContactRequest func(from string, req protocol.ContactRequest)
	OnContactAccept  func(from string, acc protocol.ContactAccept)
	OnSecurityAlert  func(from string, alert protocol.SecurityAlert)
	OnDecryptError   func(from string, err error)
}

// Engine is one user's client: keys, codec, trust records, session state
// and a relay connection.
type Engine struct {
	keys     *keymgr.Manager
	codec    *envelope.Codec
	sessions *ratchet.Store
	trust    *trust.Manager
	handlers Handlers
	log      *logrus.Logger

	mu       sync.Mutex
	conn     net.Conn
	username string
	token    string
	replies  chan protocol.Frame
	closed   chan struct{}
}

// New builds an engine at the given tier over the given trust store.
func New(tier domain.SecurityTier, trustStore domain.TrustStore, handlers Handlers, log *logrus.Logger) (*Engine, error) {
	if log == nil {
		log = logrus.New()
	}
	keys, err := keymgr.New(tier)
	if err != nil {
		return nil, err
	}
	sessions := ratchet.NewStore()
	return &Engine{
		keys:     keys,
		codec:    envelope.New(keys, sessions),
		sessions: sessions,
		trust:    trust.New(trustStore),
		handlers: handlers,
		log:      log,
	}, nil
}

// Keys exposes the key manager (identity generation, export, import).
func (e *Engine) Keys() *keymgr.Manager { return e.keys }

// Trust exposes the trust manager (fingerprint verification, status).
func (e *Engine) Trust() *trust.Manager { return e.trust }

// Sessions exposes the per-peer rotation state, mainly for inspection.
func (e *Engine) Sessions() *ratchet.Store { return e.sessions }

// EncryptMessage seals text for a recipient key without sending it.
func (e *Engine) EncryptMessage(text string, recipient domain.PublicIdentity) (domain.Envelope, error) {
	return e.codec.Encrypt(text, recipient)
}

// DecryptMessage opens an envelope attributed to the named sender.
func (e *Engine) DecryptMessage(env domain.Envelope, from string, sender domain.PublicIdentity) (string, error) {
	return e.codec.Decrypt(env, from, sender)
}

// Sign signs data with the local identity key.
func (e *Engine) Sign(data []byte) ([]byte, error) {
	id, err := e.keys.Identity()
	if err != nil {
		return nil, err
	}
	return crypto.Sign(id.EdPriv, data), nil
}

// Verify reports whether sig is a valid signature over data by pub.
func (e *Engine) Verify(data, sig []byte, pub domain.PublicIdentity) bool {
	return crypto.Verify(pub.EdPub, data, sig)
}

// SessionToken returns the relay session token, or "" when logged out.
func (e *Engine) SessionToken() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

// ResumeToken seeds a previously issued session token so the next Login
// can resume without a password.
func (e *Engine) ResumeToken(token string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token = token
}

// Connect dials the relay. A non-nil tlsCfg upgrades the transport.
func (e *Engine) Connect(addr string, tlsCfg *tls.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != nil {
		return errors.New("already connected")
	}

	var (
		conn net.Conn
		err  error
	)
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	e.conn = conn
	e.replies = make(chan protocol.Frame, 1)
	e.closed = make(chan struct{})
	go e.readLoop(conn, e.closed)
	e.log.WithField("addr", addr).Info("connected to relay")
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

// Register creates an account on the relay, publishing only the public
// identity halves, and stores the issued session token.
func (e *Engine) Register(username, displayName, password string) error {
	id, err := e.keys.Identity()
	if err != nil {
		return err
	}
	frame, err := protocol.NewFrame(protocol.TypeRegister, username, "", protocol.RegisterRequest{
		Username:     username,
		DisplayName:  displayName,
		PublicKey:    id.Public(),
		Password:     password,
		SecurityTier: e.keys.Tier(),
	})
	if err != nil {
		return err
	}
	ack, err := e.request(frame)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.username = username
	e.token = ack.SessionToken
	e.mu.Unlock()
	return nil
}

// Login authenticates with a password, or resumes with the stored session
// token when password is empty.
func (e *Engine) Login(username, password string) error {
	e.mu.Lock()
	token := e.token
	e.mu.Unlock()

	req := protocol.LoginRequest{Username: username, Password: password}
	if password == "" {
		if token == "" {
			return domain.ErrAuthentication
		}
		req = protocol.LoginRequest{SessionToken: token}
	}
	frame, err := protocol.NewFrame(protocol.TypeLogin, username, "", req)
	if err != nil {
		return err
	}
	ack, err := e.request(frame)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.username = username
	e.token = ack.SessionToken
	e.mu.Unlock()
	return nil
}

// Logout revokes the session and disconnects.
func (e *Engine) Logout() error {
	e.mu.Lock()
	username, token := e.username, e.token
	e.mu.Unlock()
	if username == "" {
		return nil
	}
	frame, err := protocol.NewFrame(protocol.TypeLogout, username, "", protocol.LogoutRequest{SessionToken: token})
	if err != nil {
		return err
	}
	if _, err := e.request(frame); err != nil {
		return err
	}
	e.mu.Lock()
	e.username, e.token = "", ""
	e.mu.Unlock()
	return e.Close()
}

// SendMessage encrypts text for the peer's trusted key and relays it.
// The peer's key must already be known (key exchange or manual trust).
func (e *Engine) SendMessage(to, text string) (string, error) {
	pub, ok := e.trust.Key(to)
	if !ok {
		return "", fmt.Errorf("no trusted key for %q; run a key exchange first", to)
	}
	env, err := e.codec.Encrypt(text, pub)
	if err != nil {
		return "", err
	}
	frame, err := protocol.NewFrame(protocol.TypeDirectMessage, e.currentUser(), to, protocol.DirectMessage{
		EncryptedData: env,
		MessageType:   "text",
	})
	if err != nil {
		return "", err
	}
	if _, err := e.request(frame); err != nil {
		return "", err
	}
	return env.MessageID, nil
}

// RequestKeyExchange offers our public identity to a peer through the
// relay. The relay forwards it without interpretation.
func (e *Engine) RequestKeyExchange(to string) error {
	id, err := e.keys.Identity()
	if err != nil {
		return err
	}
	frame, err := protocol.NewFrame(protocol.TypeKeyExchange, e.currentUser(), to, protocol.KeyExchange{
		TargetUser: to,
		PublicKey:  id.Public(),
		Algorithm:  keymgr.Profile(e.keys.Tier()).Algorithm,
	})
	if err != nil {
		return err
	}
	_, err = e.request(frame)
	return err
}

// SendContactRequest asks a peer to add us and exchange fingerprints.
func (e *Engine) SendContactRequest(to, message string) error {
	frame, err := protocol.NewFrame(protocol.TypeContactRequest, e.currentUser(), to, protocol.ContactRequest{
		TargetUser: to,
		Message:    message,
	})
	if err != nil {
		return err
	}
	_, err = e.request(frame)
	return err
}

// currentUser returns the logged-in username, or "".
func (e *Engine) currentUser() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.username
}

// request writes a frame and waits for the matching success frame. Error
// frames surface as errors.
func (e *Engine) request(f protocol.Frame) (protocol.SuccessPayload, error) {
	e.mu.Lock()
	conn := e.conn
	replies := e.replies
	e.mu.Unlock()
	if conn == nil {
		return protocol.SuccessPayload{}, ErrNotConnected
	}

	if err := protocol.WriteFrame(conn, f); err != nil {
		return protocol.SuccessPayload{}, fmt.Errorf("write %s: %w", f.Type, err)
	}

	select {
	case reply, ok := <-replies:
		if !ok {
			return protocol.SuccessPayload{}, ErrNotConnected
		}
		payload, err := protocol.DecodePayload(reply)
		if err != nil {
			return protocol.SuccessPayload{}, err
		}
		switch p := payload.(type) {
		case protocol.SuccessPayload:
			return p, nil
		case protocol.ErrorPayload:
			return protocol.SuccessPayload{}, errors.New(p.Error)
		default:
			return protocol.SuccessPayload{}, fmt.Errorf("unexpected reply type %q", reply.Type)
		}
	case <-time.After(replyTimeout):
		return protocol.SuccessPayload{}, fmt.Errorf("timed out waiting for %s ack", f.Type)
	}
}

// readLoop drains the socket, routing acks to the requester and pushes to
// the handlers.
func (e *Engine) readLoop(conn net.Conn, closed chan struct{}) {
	defer close(closed)
	reader := protocol.NewFrameReader(conn)
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			e.mu.Lock()
			if e.replies != nil {
				close(e.replies)
				e.replies = nil
			}
			e.mu.Unlock()
			e.log.WithError(err).Debug("reader stopped")
			return
		}
		switch frame.Type {
		case protocol.TypeSuccess, protocol.TypeError:
			e.mu.Lock()
			replies := e.replies
			e.mu.Unlock()
			if replies != nil {
				select {
				case replies <- frame:
				default:
					// No request in flight; drop the stray ack.
				}
			}
		default:
			e.dispatch(frame)
		}
	}
}

// dispatch handles pushed frames: messages, presence, key exchanges,
// contact traffic and alerts.
func (e *Engine) dispatch(frame protocol.Frame) {
	payload, err := protocol.DecodePayload(frame)
	if err != nil {
		e.log.WithError(err).Warn("dropping undecodable frame")
		return
	}

	switch p := payload.(type) {
	case protocol.DirectMessage:
		e.handleDirectMessage(frame.Sender, p)

	case protocol.OnlineUsers:
		if e.handlers.OnPresence != nil {
			e.handlers.OnPresence(p.Users)
		}

	case protocol.KeyExchange:
		rec, err := e.trust.AddKey(frame.Sender, p.PublicKey)
		if err != nil {
			e.log.WithError(err).Warn("failed to record peer key")
			return
		}
		e.log.WithFields(logrus.Fields{
			"from":        frame.Sender,
			"fingerprint": rec.Fingerprint,
		}).Info("peer key received; verify the fingerprint out of band")
		if e.handlers.OnKeyExchange != nil {
			e.handlers.OnKeyExchange(frame.Sender, rec)
		}

	case protocol.ContactRequest:
		if e.handlers.OnContactRequest != nil {
			e.handlers.OnContactRequest(frame.Sender, p)
		}

	case protocol.ContactAccept:
		if e.handlers.OnContactAccept != nil {
			e.handlers.OnContactAccept(frame.Sender, p)
		}

	case protocol.SecurityAlert:
		if e.handlers.OnSecurityAlert != nil {
			e.handlers.OnSecurityAlert(frame.Sender, p)
		}

	default:
		e.log.WithField("type", frame.Type).Debug("ignoring frame")
	}
}

func (e *Engine) handleDirectMessage(from string, dm protocol.DirectMessage) {
	sender, ok := e.trust.Key(from)
	if !ok {
		err := fmt.Errorf("message from %q but no trusted key on file", from)
		e.log.Warn(err.Error())
		if e.handlers.OnDecryptError != nil {
			e.handlers.OnDecryptError(from, err)
		}
		return
	}
	text, err := e.codec.Decrypt(dm.EncryptedData, from, sender)
	if err != nil {
		e.log.WithError(err).WithField("from", from).Warn("envelope rejected")
		if e.handlers.OnDecryptError != nil {
			e.handlers.OnDecryptError(from, err)
		}
		return
	}
	if e.handlers.OnMessage != nil {
		e.handlers.OnMessage(from, text, dm.EncryptedData.MessageID)
	}
}

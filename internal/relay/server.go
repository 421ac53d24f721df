// Package relay implements the server side of veil: the connection
// registry that maps authenticated users to live transports, the session
// token authority, and the TCP front end that relays opaque envelopes. The
// relay never sees plaintext or decryption keys; it knows who talks to
// whom, never what they say.
package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"veil/internal/domain"
	"veil/internal/protocol"
)

// Config carries the relay server's runtime options.
type Config struct {
	Addr          string
	TLSCertFile   string
	TLSKeyFile    string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	TokenTTL      time.Duration
	StatsInterval time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8888"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}
	if c.StatsInterval <= 0 {
		c.StatsInterval = time.Minute
	}
	return c
}

// Server accepts client connections and drives the registry.
type Server struct {
	cfg      Config
	log      *logrus.Logger
	store    domain.AccountStore
	registry *Registry
	tokens   *Authority

	mu sync.Mutex
	ln net.Listener
}

// NewServer wires a server around an account store.
func NewServer(cfg Config, store domain.AccountStore, hashPwd func(string) ([]byte, error), log *logrus.Logger) *Server {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logrus.New()
	}
	tokens := NewAuthority(store, cfg.TokenTTL)
	return &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		tokens:   tokens,
		registry: NewRegistry(store, tokens, hashPwd, log),
	}
}

// Registry exposes the connection registry, mainly for tests.
func (s *Server) Registry() *Registry { return s.registry }

// Addr returns the bound listen address once Run has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Run listens and serves until ctx is cancelled. A TLS certificate pair in
// the config upgrades the listener; transport security is standard
// crypto/tls, not reimplemented here.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.log.WithField("addr", ln.Addr().String()).Info("relay listening")

	go s.statsLoop(ctx)
	go func() {
		<-ctx.Done()
		ln.Close()
		s.registry.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) listen() (net.Listener, error) {
	if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load tls keypair: %w", err)
		}
		s.log.Info("tls enabled")
		return tls.Listen("tcp", s.cfg.Addr, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}
	return net.Listen("tcp", s.cfg.Addr)
}

// peerConn adapts a net.Conn to the registry's Peer interface. Sends are
// serialized by a mutex because presence broadcasts and forwards may race
// with direct responses.
type peerConn struct {
	mu      sync.Mutex
	conn    net.Conn
	timeout time.Duration
}

func (p *peerConn) Send(f protocol.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(p.timeout)); err != nil {
		return err
	}
	return protocol.WriteFrame(p.conn, f)
}

// handleConn runs one client connection: read a frame, dispatch, reply.
// A read timeout or closed stream tears the connection down and removes
// the user from the registry; nothing is retried.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log := s.log.WithField("remote", remote)
	log.Debug("connection accepted")

	peer := &peerConn{conn: conn, timeout: s.cfg.WriteTimeout}
	reader := protocol.NewFrameReader(conn)
	currentUser := ""

	defer func() {
		if currentUser != "" {
			s.registry.Disconnect(currentUser, peer)
		}
		conn.Close()
		log.WithField("username", currentUser).Debug("connection closed")
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}
		frame, err := reader.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return
			case errors.Is(err, os.ErrDeadlineExceeded):
				log.WithField("username", currentUser).Debug("read timeout")
				return
			case errors.Is(err, domain.ErrProtocolVersion):
				_ = peer.Send(protocol.ErrorFrame("", err.Error()))
				return
			default:
				// Malformed frame: report and keep the connection.
				if _, ok := err.(net.Error); ok {
					return
				}
				_ = peer.Send(protocol.ErrorFrame("", "malformed frame: "+err.Error()))
				continue
			}
		}

		reply := s.dispatch(frame, peer, remote, &currentUser)
		if reply != nil {
			if err := peer.Send(*reply); err != nil {
				log.WithError(err).Debug("reply write failed")
				return
			}
		}
		if frame.Type == protocol.TypeLogout {
			return
		}
	}
}

// dispatch decodes the payload once and routes by type. Relay failures
// come back to the sender as protocol error frames; they never take the
// server or other connections down.
func (s *Server) dispatch(f protocol.Frame, peer Peer, remote string, currentUser *string) *protocol.Frame {
	payload, err := protocol.DecodePayload(f)
	if err != nil {
		return errReply(f, err)
	}
	deviceInfo := "veil client " + remote

	switch p := payload.(type) {
	case protocol.RegisterRequest:
		res, err := s.registry.Register(peer, p, deviceInfo)
		if err != nil {
			return errReply(f, err)
		}
		*currentUser = res.Username
		return okReply(f, protocol.SuccessPayload{
			Message:      fmt.Sprintf("welcome to veil, %s", res.Username),
			UserID:       res.UserID,
			SessionToken: res.SessionToken,
		})

	case protocol.LoginRequest:
		res, err := s.registry.Login(peer, p, deviceInfo)
		if err != nil {
			return errReply(f, err)
		}
		*currentUser = res.Username
		return okReply(f, protocol.SuccessPayload{
			Message:      "login successful",
			UserID:       res.UserID,
			SessionToken: res.SessionToken,
		})

	case protocol.LogoutRequest:
		if *currentUser != "" {
			s.registry.Logout(*currentUser, peer)
			*currentUser = ""
		}
		return okReply(f, protocol.SuccessPayload{Message: "logged out"})

	case protocol.KeyExchange:
		if !s.authenticated(f, *currentUser) {
			return errReply(f, domain.ErrAuthentication)
		}
		if err := s.registry.ForwardKeyExchange(f, p.TargetUser); err != nil {
			return errReply(f, err)
		}
		return okReply(f, protocol.SuccessPayload{Status: "key_exchange_forwarded"})

	case protocol.DirectMessage:
		if !s.authenticated(f, *currentUser) {
			return errReply(f, domain.ErrAuthentication)
		}
		if err := s.registry.ForwardEnvelope(f, p); err != nil {
			return errReply(f, err)
		}
		return okReply(f, protocol.SuccessPayload{
			Status:    "delivered",
			MessageID: p.EncryptedData.MessageID,
		})

	case protocol.ContactRequest:
		if !s.authenticated(f, *currentUser) {
			return errReply(f, domain.ErrAuthentication)
		}
		if err := s.registry.ForwardOpaque(f, p.TargetUser); err != nil {
			return errReply(f, err)
		}
		return okReply(f, protocol.SuccessPayload{Status: "contact_request_sent"})

	case protocol.ContactAccept:
		if !s.authenticated(f, *currentUser) {
			return errReply(f, domain.ErrAuthentication)
		}
		if err := s.registry.ForwardOpaque(f, p.TargetUser); err != nil {
			return errReply(f, err)
		}
		return okReply(f, protocol.SuccessPayload{Status: "contact_accept_sent"})

	case protocol.SecurityAlert:
		if !s.authenticated(f, *currentUser) {
			return errReply(f, domain.ErrAuthentication)
		}
		if f.Receiver == "" {
			return errReply(f, fmt.Errorf("security alert requires a receiver"))
		}
		if err := s.registry.ForwardOpaque(f, f.Receiver); err != nil {
			return errReply(f, err)
		}
		return okReply(f, protocol.SuccessPayload{Status: "alert_forwarded"})

	case protocol.OnlineUsers:
		users, err := s.registry.OnlineUsers()
		if err != nil {
			return errReply(f, err)
		}
		reply := protocol.MustFrame(protocol.TypeOnlineUsers, "", f.Sender, protocol.OnlineUsers{
			Users:       users,
			TotalOnline: len(users),
			ServerTime:  time.Now().UTC().Format(time.RFC3339),
		})
		return &reply
	}

	return errReply(f, fmt.Errorf("unhandled message type %q", f.Type))
}

// authenticated requires a login and forbids sender spoofing.
func (s *Server) authenticated(f protocol.Frame, currentUser string) bool {
	return currentUser != "" && f.Sender == currentUser
}

func errReply(f protocol.Frame, err error) *protocol.Frame {
	reply := protocol.ErrorFrame(f.Sender, err.Error())
	return &reply
}

func okReply(f protocol.Frame, p protocol.SuccessPayload) *protocol.Frame {
	reply := protocol.MustFrame(protocol.TypeSuccess, "", f.Sender, p)
	return &reply
}

// statsLoop periodically logs aggregate store counters.
func (s *Server) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st, err := s.store.Stats()
			if err != nil {
				s.log.WithError(err).Warn("stats collection failed")
				continue
			}
			if st.OnlineUsers > 0 {
				s.log.WithFields(logrus.Fields{
					"total_users":     st.TotalUsers,
					"online_users":    st.OnlineUsers,
					"total_messages":  st.TotalMessages,
					"active_sessions": st.ActiveSessions,
				}).Info("relay stats")
			}
		}
	}
}

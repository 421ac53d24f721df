package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"veil/internal/domain"
	"veil/internal/protocol"
)

// minPasswordLength is enforced before the account store is consulted.
const minPasswordLength = 8

// Peer is the transport handle for one live client connection. The
// registry is the sole owner of these handles.
type Peer interface {
	Send(f protocol.Frame) error
}

// entry is one live, authenticated connection.
type entry struct {
	username  string
	peer      Peer
	publicKey domain.PublicIdentity
	token     string
}

// Registry maps authenticated usernames to live connections and relays
// opaque envelopes between them.
//
// All map access runs on a single owning goroutine; public methods post
// closures to it and wait for the reply. That serializes every mutation
// without ad hoc locking and keeps forwarding order stable.
type Registry struct {
	cmds    chan func()
	done    chan struct{}
	entries map[string]*entry

	store   domain.AccountStore
	tokens  *Authority
	hashPwd func(string) ([]byte, error)
	log     *logrus.Logger
}

// NewRegistry starts the owning goroutine.
func NewRegistry(store domain.AccountStore, tokens *Authority, hashPwd func(string) ([]byte, error), log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	r := &Registry{
		cmds:    make(chan func()),
		done:    make(chan struct{}),
		entries: make(map[string]*entry),
		store:   store,
		tokens:  tokens,
		hashPwd: hashPwd,
		log:     log,
	}
	go r.loop()
	return r
}

func (r *Registry) loop() {
	for {
		select {
		case fn := <-r.cmds:
			fn()
		case <-r.done:
			return
		}
	}
}

// do runs fn on the owning goroutine and waits for it to finish.
func (r *Registry) do(fn func()) {
	doneCh := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(doneCh) }:
		<-doneCh
	case <-r.done:
	}
}

// Close stops the owning goroutine. Live connections are left to their
// handlers to close.
func (r *Registry) Close() { close(r.done) }

// AuthResult is what a successful register or login hands back to the
// connection handler.
type AuthResult struct {
	Username     string
	UserID       string
	SessionToken string
}

// Register creates the account, issues a session token, adds the
// connection to the online set and broadcasts updated presence.
func (r *Registry) Register(p Peer, req protocol.RegisterRequest, deviceInfo string) (AuthResult, error) {
	if req.Username == "" || req.Password == "" {
		return AuthResult{}, fmt.Errorf("%w: username and password required", domain.ErrAuthentication)
	}
	if len(req.Password) < minPasswordLength {
		return AuthResult{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrAuthentication, minPasswordLength)
	}
	tier := req.SecurityTier
	if !tier.Valid() {
		tier = domain.TierStandard
	}

	hash, err := r.hashPwd(req.Password)
	if err != nil {
		return AuthResult{}, err
	}

	var res AuthResult
	var opErr error
	r.do(func() {
		userID, err := r.store.RegisterUser(req.Username, req.DisplayName, req.PublicKey, hash, tier)
		if err != nil {
			opErr = err
			return
		}
		tok, err := r.tokens.Issue(userID, req.Username, deviceInfo)
		if err != nil {
			opErr = err
			return
		}
		r.replaceEntryLocked(&entry{
			username:  req.Username,
			peer:      p,
			publicKey: req.PublicKey,
			token:     tok.Token,
		})
		res = AuthResult{Username: req.Username, UserID: userID, SessionToken: tok.Token}
		r.broadcastPresenceLocked()
		r.log.WithFields(logrus.Fields{"username": req.Username, "online": len(r.entries)}).Info("registered and connected")
	})
	return res, opErr
}

// Login authenticates by password or resumes by session token, then adds
// the connection to the online set and broadcasts presence.
func (r *Registry) Login(p Peer, req protocol.LoginRequest, deviceInfo string) (AuthResult, error) {
	var res AuthResult
	var opErr error
	r.do(func() {
		var username, userID, token string

		if req.SessionToken != "" {
			tok, err := r.tokens.Resume(req.SessionToken)
			if err != nil {
				opErr = err
				return
			}
			username, userID, token = tok.Username, tok.UserID, tok.Token
		} else {
			id, err := r.store.Authenticate(req.Username, req.Password)
			if err != nil {
				opErr = err
				return
			}
			tok, err := r.tokens.Issue(id, req.Username, deviceInfo)
			if err != nil {
				opErr = err
				return
			}
			username, userID, token = req.Username, id, tok.Token
		}

		pub, err := r.store.GetPublicKey(username)
		if err != nil {
			opErr = err
			return
		}
		if err := r.store.SetUserStatus(username, true); err != nil {
			opErr = err
			return
		}
		r.replaceEntryLocked(&entry{username: username, peer: p, publicKey: pub, token: token})
		res = AuthResult{Username: username, UserID: userID, SessionToken: token}
		r.broadcastPresenceLocked()
		r.log.WithFields(logrus.Fields{"username": username, "online": len(r.entries)}).Info("logged in")
	})
	return res, opErr
}

// ForwardKeyExchange passes a key-exchange frame to the target unchanged.
func (r *Registry) ForwardKeyExchange(f protocol.Frame, target string) error {
	return r.forward(f, target, nil)
}

// ForwardEnvelope logs only envelope metadata (a hash of the ciphertext,
// the routing fields, type and time) and then forwards the frame
// unchanged. An offline receiver yields ErrPeerOffline; nothing is queued.
func (r *Registry) ForwardEnvelope(f protocol.Frame, dm protocol.DirectMessage) error {
	sum := sha256.Sum256(dm.EncryptedData.Ciphertext)
	meta := domain.MessageMetadata{
		MessageID:   dm.EncryptedData.MessageID,
		Sender:      f.Sender,
		Receiver:    f.Receiver,
		ContentHash: hex.EncodeToString(sum[:]),
		Type:        valueOr(dm.MessageType, "text"),
		Timestamp:   time.Now(),
	}
	return r.forward(f, f.Receiver, &meta)
}

// ForwardOpaque relays contact requests, accepts and security alerts.
func (r *Registry) ForwardOpaque(f protocol.Frame, target string) error {
	return r.forward(f, target, nil)
}

func (r *Registry) forward(f protocol.Frame, target string, meta *domain.MessageMetadata) error {
	var opErr error
	r.do(func() {
		e, online := r.entries[target]
		if !online {
			opErr = domain.ErrPeerOffline
			return
		}
		if meta != nil {
			if err := r.store.LogMessageMetadata(*meta); err != nil {
				r.log.WithError(err).Warn("failed to log message metadata")
			}
		}
		if err := e.peer.Send(f); err != nil {
			opErr = fmt.Errorf("forward to %s: %w", target, err)
			return
		}
	})
	return opErr
}

// replaceEntryLocked installs a connection entry. A later login for the
// same username evicts the earlier connection: the new entry wins and the
// old transport is left to its own handler's teardown, which no longer
// owns the registry slot.
func (r *Registry) replaceEntryLocked(e *entry) {
	if old, ok := r.entries[e.username]; ok && old.peer != e.peer {
		r.log.WithField("username", e.username).Warn("replacing live connection with newer login")
	}
	r.entries[e.username] = e
}

// Disconnect removes the connection entry owned by p, revokes nothing
// (tokens stay valid for resumption), marks the account offline and
// broadcasts the updated presence list. When the slot has already been
// taken over by a newer login, the stale connection's disconnect is a
// no-op.
func (r *Registry) Disconnect(username string, p Peer) {
	r.do(func() {
		e, ok := r.entries[username]
		if !ok || e.peer != p {
			return
		}
		delete(r.entries, username)
		if err := r.store.SetUserStatus(username, false); err != nil {
			r.log.WithError(err).Warn("failed to mark user offline")
		}
		r.broadcastPresenceLocked()
		r.log.WithFields(logrus.Fields{"username": username, "online": len(r.entries)}).Info("disconnected")
	})
}

// Logout is Disconnect plus token revocation. Like Disconnect it only
// acts when the slot still belongs to p.
func (r *Registry) Logout(username string, p Peer) {
	r.do(func() {
		e, ok := r.entries[username]
		if !ok || e.peer != p {
			return
		}
		if err := r.tokens.Revoke(e.token); err != nil {
			r.log.WithError(err).Warn("failed to revoke session token")
		}
		delete(r.entries, username)
		if err := r.store.SetUserStatus(username, false); err != nil {
			r.log.WithError(err).Warn("failed to mark user offline")
		}
		r.broadcastPresenceLocked()
		r.log.WithField("username", username).Info("logged out")
	})
}

// BroadcastPresence pushes the online-user list to every live connection.
func (r *Registry) BroadcastPresence() {
	r.do(r.broadcastPresenceLocked)
}

// broadcastPresenceLocked runs on the owning goroutine. Best-effort: a
// failed write to one peer is skipped, not fatal to the rest.
func (r *Registry) broadcastPresenceLocked() {
	users, err := r.store.GetOnlineUsers()
	if err != nil {
		r.log.WithError(err).Warn("presence: online user lookup failed")
		return
	}
	frame := protocol.MustFrame(protocol.TypeOnlineUsers, "", "", protocol.OnlineUsers{
		Users:       users,
		TotalOnline: len(users),
		ServerTime:  time.Now().UTC().Format(time.RFC3339),
	})
	for name, e := range r.entries {
		if err := e.peer.Send(frame); err != nil {
			r.log.WithFields(logrus.Fields{"username": name}).WithError(err).Warn("presence push failed")
		}
	}
}

// OnlineUsers returns the presence list as the registry would broadcast it.
func (r *Registry) OnlineUsers() ([]domain.OnlineUser, error) {
	var users []domain.OnlineUser
	var opErr error
	r.do(func() {
		users, opErr = r.store.GetOnlineUsers()
	})
	return users, opErr
}

// IsOnline reports whether the username has a live connection.
func (r *Registry) IsOnline(username string) bool {
	var online bool
	r.do(func() {
		_, online = r.entries[username]
	})
	return online
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

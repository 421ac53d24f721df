package domain

import "time"

// OnlineUser is the presence entry broadcast to connected peers. Only the
// username, display name and tier are ever shared.
type OnlineUser struct {
	Username     string       `json:"username"`
	DisplayName  string       `json:"display_name"`
	SecurityTier SecurityTier `json:"security_tier"`
}

// SessionToken is an opaque credential bound to an authenticated login.
// The token value itself is high-entropy and not reversible to any secret.
type SessionToken struct {
	Token      string    `json:"token"`
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	DeviceInfo string    `json:"device_info"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Active     bool      `json:"active"`
}

// MessageMetadata is what the relay persists about a forwarded envelope:
// never content, only routing facts and a hash of the ciphertext.
type MessageMetadata struct {
	MessageID   string    `json:"message_id"`
	Sender      string    `json:"sender"`
	Receiver    string    `json:"receiver"`
	ContentHash string    `json:"content_hash"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
}

// AccountStore is the persistence service the relay delegates to. It never
// receives plaintext or private key material.
type AccountStore interface {
	// RegisterUser creates an account and returns its id.
	// Returns ErrRegistrationConflict if the username is taken.
	RegisterUser(username, displayName string, publicKey PublicIdentity, passwordHash []byte, tier SecurityTier) (string, error)

	// Authenticate checks a password and returns the user id, or
	// ErrAuthentication.
	Authenticate(username, password string) (string, error)

	// GetPublicKey returns a user's published identity key.
	GetPublicKey(username string) (PublicIdentity, error)

	// GetOnlineUsers lists users currently marked online.
	GetOnlineUsers() ([]OnlineUser, error)

	// SetUserStatus marks a user online or offline.
	SetUserStatus(username string, online bool) error

	// CreateSession persists a session token record.
	CreateSession(tok SessionToken) error

	// ValidateSession returns the user id for a token that is active and
	// unexpired, or ErrSessionExpired.
	ValidateSession(token string) (string, error)

	// GetSession returns the full record for a token that is active and
	// unexpired, or ErrSessionExpired. Used for session resumption.
	GetSession(token string) (SessionToken, error)

	// RevokeSession deactivates a token. Revoking an unknown token is not
	// an error.
	RevokeSession(token string) error

	// LogMessageMetadata records routing metadata for a forwarded envelope.
	LogMessageMetadata(meta MessageMetadata) error

	// Stats returns aggregate counters for periodic server logging.
	Stats() (StoreStats, error)

	// Close releases underlying resources.
	Close() error
}

// StoreStats is the aggregate view used by the relay's periodic stats log.
type StoreStats struct {
	TotalUsers     int `json:"total_users"`
	OnlineUsers    int `json:"online_users"`
	TotalMessages  int `json:"total_messages"`
	ActiveSessions int `json:"active_sessions"`
}

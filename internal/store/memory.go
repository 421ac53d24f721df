package store

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"veil/internal/domain"
)

// userRecord is the persisted account row.
type userRecord struct {
	ID           string                `json:"id"`
	Username     string                `json:"username"`
	DisplayName  string                `json:"display_name"`
	PublicKey    domain.PublicIdentity `json:"public_key"`
	PasswordHash []byte                `json:"password_hash"`
	Tier         domain.SecurityTier   `json:"security_tier"`
	Online       bool                  `json:"online"`
	RegisteredAt time.Time             `json:"registered_at"`
	LastSeen     time.Time             `json:"last_seen"`
}

// HashPassword bcrypt-hashes a password for storage.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Memory is an in-memory AccountStore for tests and dev relays.
type Memory struct {
	mu       sync.Mutex
	users    map[string]*userRecord
	sessions map[string]*domain.SessionToken
	messages []domain.MessageMetadata
	now      func() time.Time
}

// NewMemory returns an empty in-memory account store.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[string]*userRecord),
		sessions: make(map[string]*domain.SessionToken),
		now:      time.Now,
	}
}

// SetClock overrides the time source; tests use it to expire sessions.
func (s *Memory) SetClock(now func() time.Time) { s.now = now }

func (s *Memory) RegisterUser(username, displayName string, publicKey domain.PublicIdentity, passwordHash []byte, tier domain.SecurityTier) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return "", domain.ErrRegistrationConflict
	}
	if displayName == "" {
		displayName = username
	}
	rec := &userRecord{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PublicKey:    publicKey,
		PasswordHash: append([]byte(nil), passwordHash...),
		Tier:         tier,
		Online:       true,
		RegisteredAt: s.now(),
		LastSeen:     s.now(),
	}
	s.users[username] = rec
	return rec.ID, nil
}

func (s *Memory) Authenticate(username, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[username]
	if !ok {
		return "", domain.ErrAuthentication
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return "", domain.ErrAuthentication
	}
	rec.LastSeen = s.now()
	return rec.ID, nil
}

func (s *Memory) GetPublicKey(username string) (domain.PublicIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[username]
	if !ok {
		return domain.PublicIdentity{}, domain.ErrAuthentication
	}
	return rec.PublicKey, nil
}

func (s *Memory) GetOnlineUsers() ([]domain.OnlineUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.OnlineUser, 0, len(s.users))
	for _, rec := range s.users {
		if rec.Online {
			out = append(out, domain.OnlineUser{
				Username:     rec.Username,
				DisplayName:  rec.DisplayName,
				SecurityTier: rec.Tier,
			})
		}
	}
	return out, nil
}

func (s *Memory) SetUserStatus(username string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.users[username]; ok {
		rec.Online = online
		rec.LastSeen = s.now()
	}
	return nil
}

func (s *Memory) CreateSession(tok domain.SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := tok
	s.sessions[tok.Token] = &cp
	return nil
}

func (s *Memory) ValidateSession(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.sessions[token]
	if !ok || !tok.Active || !s.now().Before(tok.ExpiresAt) {
		return "", domain.ErrSessionExpired
	}
	return tok.UserID, nil
}

func (s *Memory) GetSession(token string) (domain.SessionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.sessions[token]
	if !ok || !tok.Active || !s.now().Before(tok.ExpiresAt) {
		return domain.SessionToken{}, domain.ErrSessionExpired
	}
	return *tok, nil
}

func (s *Memory) RevokeSession(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok, ok := s.sessions[token]; ok {
		tok.Active = false
	}
	return nil
}

func (s *Memory) LogMessageMetadata(meta domain.MessageMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, meta)
	return nil
}

// Messages returns a copy of the logged metadata, for tests.
func (s *Memory) Messages() []domain.MessageMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MessageMetadata(nil), s.messages...)
}

func (s *Memory) Stats() (domain.StoreStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.StoreStats{
		TotalUsers:    len(s.users),
		TotalMessages: len(s.messages),
	}
	for _, rec := range s.users {
		if rec.Online {
			st.OnlineUsers++
		}
	}
	for _, tok := range s.sessions {
		if tok.Active && s.now().Before(tok.ExpiresAt) {
			st.ActiveSessions++
		}
	}
	return st, nil
}

func (s *Memory) Close() error { return nil }

var _ domain.AccountStore = (*Memory)(nil)

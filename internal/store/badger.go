package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"veil/internal/domain"
)

// Key prefixes for the different record types in BadgerDB.
const (
	userPrefix    = "user:"
	sessionPrefix = "sess:"
	metaPrefix    = "msgmeta:"
)

// Badger is the production AccountStore backed by BadgerDB. Session
// entries carry a TTL matching their expiry, so stale tokens age out of
// the database on their own.
type Badger struct {
	db  *badger.DB
	log *logrus.Logger
}

// OpenBadger opens (or creates) the store at dir.
func OpenBadger(dir string, log *logrus.Logger) (*Badger, error) {
	if log == nil {
		log = logrus.New()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open account store: %w", err)
	}
	return &Badger{db: db, log: log}, nil
}

func (s *Badger) RegisterUser(username, displayName string, publicKey domain.PublicIdentity, passwordHash []byte, tier domain.SecurityTier) (string, error) {
	if displayName == "" {
		displayName = username
	}
	rec := userRecord{
		ID:           uuid.NewString(),
		Username:     username,
		DisplayName:  displayName,
		PublicKey:    publicKey,
		PasswordHash: passwordHash,
		Tier:         tier,
		Online:       true,
		RegisteredAt: time.Now(),
		LastSeen:     time.Now(),
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(userPrefix + username)
		if _, err := txn.Get(key); err == nil {
			return domain.ErrRegistrationConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		val, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{"username": username, "tier": tier}).Info("user registered")
	return rec.ID, nil
}

func (s *Badger) Authenticate(username, password string) (string, error) {
	rec, err := s.getUser(username)
	if err != nil {
		return "", domain.ErrAuthentication
	}
	if bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)) != nil {
		return "", domain.ErrAuthentication
	}
	rec.LastSeen = time.Now()
	if err := s.putUser(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *Badger) GetPublicKey(username string) (domain.PublicIdentity, error) {
	rec, err := s.getUser(username)
	if err != nil {
		return domain.PublicIdentity{}, err
	}
	return rec.PublicKey, nil
}

func (s *Badger) GetOnlineUsers() ([]domain.OnlineUser, error) {
	var out []domain.OnlineUser
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(userPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec userRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				if rec.Online {
					out = append(out, domain.OnlineUser{
						Username:     rec.Username,
						DisplayName:  rec.DisplayName,
						SecurityTier: rec.Tier,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *Badger) SetUserStatus(username string, online bool) error {
	rec, err := s.getUser(username)
	if err != nil {
		// Unknown user: nothing to mark.
		return nil
	}
	rec.Online = online
	rec.LastSeen = time.Now()
	return s.putUser(rec)
}

func (s *Badger) CreateSession(tok domain.SessionToken) error {
	val, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	ttl := time.Until(tok.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session already expired at %s", tok.ExpiresAt)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(sessionPrefix+tok.Token), val).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (s *Badger) ValidateSession(token string) (string, error) {
	var tok domain.SessionToken
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + token))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tok)
		})
	})
	if err != nil || !tok.Active || !time.Now().Before(tok.ExpiresAt) {
		return "", domain.ErrSessionExpired
	}
	return tok.UserID, nil
}

func (s *Badger) GetSession(token string) (domain.SessionToken, error) {
	var tok domain.SessionToken
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionPrefix + token))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &tok)
		})
	})
	if err != nil || !tok.Active || !time.Now().Before(tok.ExpiresAt) {
		return domain.SessionToken{}, domain.ErrSessionExpired
	}
	return tok, nil
}

func (s *Badger) RevokeSession(token string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(sessionPrefix + token)
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var tok domain.SessionToken
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &tok) }); err != nil {
			return err
		}
		tok.Active = false
		val, err := json.Marshal(tok)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
}

func (s *Badger) LogMessageMetadata(meta domain.MessageMetadata) error {
	val, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(metaPrefix+meta.MessageID), val)
	})
}

func (s *Badger) Stats() (domain.StoreStats, error) {
	var st domain.StoreStats
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			switch {
			case len(key) > len(userPrefix) && key[:len(userPrefix)] == userPrefix:
				st.TotalUsers++
				err := it.Item().Value(func(val []byte) error {
					var rec userRecord
					if err := json.Unmarshal(val, &rec); err != nil {
						return err
					}
					if rec.Online {
						st.OnlineUsers++
					}
					return nil
				})
				if err != nil {
					return err
				}
			case len(key) > len(sessionPrefix) && key[:len(sessionPrefix)] == sessionPrefix:
				err := it.Item().Value(func(val []byte) error {
					var tok domain.SessionToken
					if err := json.Unmarshal(val, &tok); err != nil {
						return err
					}
					if tok.Active && time.Now().Before(tok.ExpiresAt) {
						st.ActiveSessions++
					}
					return nil
				})
				if err != nil {
					return err
				}
			case len(key) > len(metaPrefix) && key[:len(metaPrefix)] == metaPrefix:
				st.TotalMessages++
			}
		}
		return nil
	})
	return st, err
}

func (s *Badger) Close() error { return s.db.Close() }

func (s *Badger) getUser(username string) (userRecord, error) {
	var rec userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, domain.ErrAuthentication
	}
	return rec, err
}

func (s *Badger) putUser(rec userRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(userPrefix+rec.Username), val)
	})
}

var _ domain.AccountStore = (*Badger)(nil)

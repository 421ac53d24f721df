package keymgr

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"veil/internal/domain"
	"veil/internal/util/memzero"
)

const exportSaltBytes = 16

// exportBlob is the serialized form of a password-protected identity.
type exportBlob struct {
	Version    int                 `json:"version"`
	Tier       domain.SecurityTier `json:"security_tier"`
	Salt       []byte              `json:"salt"`
	Nonce      []byte              `json:"nonce"`
	Ciphertext []byte              `json:"ciphertext"`
	ExportedAt int64               `json:"exported_at"`
}

// Export serializes the identity encrypted under a password-derived key.
// The salt is random per export, so two exports of the same identity never
// produce the same blob.
func (m *Manager) Export(password string) ([]byte, error) {
	if m.identity == nil {
		return nil, ErrNoIdentity
	}
	plain, err := json.Marshal(m.identity)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(plain)

	salt := make([]byte, exportSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	kek := deriveKEK(password, salt, m.tier)
	defer memzero.Zero(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	blob := exportBlob{
		Version:    1,
		Tier:       m.tier,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plain, salt),
		ExportedAt: time.Now().Unix(),
	}
	return json.Marshal(blob)
}

// Import replaces the manager's identity with one decrypted from an export
// blob. A wrong password yields domain.ErrKeyImport and leaves the current
// identity untouched; no partial key material is ever returned.
func (m *Manager) Import(data []byte, password string) error {
	var blob exportBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return fmt.Errorf("%w: malformed blob", domain.ErrKeyImport)
	}
	if !blob.Tier.Valid() {
		return fmt.Errorf("%w: unknown security tier %d", domain.ErrKeyImport, blob.Tier)
	}
	if len(blob.Salt) != exportSaltBytes {
		return fmt.Errorf("%w: malformed blob", domain.ErrKeyImport)
	}
	kek := deriveKEK(password, blob.Salt, blob.Tier)
	defer memzero.Zero(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return err
	}
	if len(blob.Nonce) != aead.NonceSize() {
		return fmt.Errorf("%w: malformed blob", domain.ErrKeyImport)
	}
	plain, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, blob.Salt)
	if err != nil {
		return fmt.Errorf("%w: wrong password or corrupt blob", domain.ErrKeyImport)
	}
	defer memzero.Zero(plain)

	var id domain.Identity
	if err := json.Unmarshal(plain, &id); err != nil {
		return fmt.Errorf("%w: corrupt identity payload", domain.ErrKeyImport)
	}
	m.identity = &id
	m.tier = blob.Tier
	return nil
}

// deriveKEK derives the key-encryption key from a password with Argon2id
// using the tier's fixed cost parameters.
func deriveKEK(password string, salt []byte, tier domain.SecurityTier) []byte {
	p := Profile(tier)
	return argon2.IDKey([]byte(password), salt, p.Argon2Time, p.Argon2MemoryK, p.Argon2Threads, 32)
}

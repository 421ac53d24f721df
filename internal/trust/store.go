package trust

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"veil/internal/domain"
)

// MemoryStore keeps trust records in memory. Useful for tests and
// short-lived sessions.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]domain.TrustedKeyRecord
}

// NewMemoryStore returns an empty in-memory trust store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]domain.TrustedKeyRecord)}
}

func (s *MemoryStore) Put(rec domain.TrustedKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.Username] = rec
	return nil
}

func (s *MemoryStore) Get(username string) (domain.TrustedKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[username]
	return rec, ok, nil
}

func (s *MemoryStore) List() ([]domain.TrustedKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TrustedKeyRecord, 0, len(s.recs))
	for _, rec := range s.recs {
		out = append(out, rec)
	}
	return out, nil
}

var _ domain.TrustStore = (*MemoryStore)(nil)

const trustFile = "trusted_keys.json"

// FileStore persists trust records as a JSON file in the config dir.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore returns a file-backed trust store rooted at dir.
func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

func (s *FileStore) Put(rec domain.TrustedKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]domain.TrustedKeyRecord)
	if err := readJSON(s.path(), &m); err != nil {
		return err
	}
	m[rec.Username] = rec
	return writeJSON(s.path(), m, 0o600)
}

func (s *FileStore) Get(username string) (domain.TrustedKeyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]domain.TrustedKeyRecord)
	if err := readJSON(s.path(), &m); err != nil {
		return domain.TrustedKeyRecord{}, false, err
	}
	rec, ok := m[username]
	return rec, ok, nil
}

func (s *FileStore) List() ([]domain.TrustedKeyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]domain.TrustedKeyRecord)
	if err := readJSON(s.path(), &m); err != nil {
		return nil, err
	}
	out := make([]domain.TrustedKeyRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	return out, nil
}

func (s *FileStore) path() string { return filepath.Join(s.dir, trustFile) }

var _ domain.TrustStore = (*FileStore)(nil)

// readJSON best-effort reads path into out; a missing file is not an error.
func readJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// writeJSON writes JSON via a temp file then rename.
func writeJSON(path string, v any, mode os.FileMode) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, mode); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

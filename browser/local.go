package browser

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tender-notifier/pkg/tender"
)

const keyPrefix = "tender-cache:"

// LocalStore keeps one LocalCache per user as a JSON file under dir.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Key is the namespaced storage key for userID.
func Key(userID string) string {
	return keyPrefix + userID
}

func (s *LocalStore) path(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("empty user id")
	}
	// URL-safe base64 is reversible, so distinct ids never share a file,
	// and its alphabet has no path separators.
	name := base64.RawURLEncoding.EncodeToString([]byte(Key(userID)))
	return filepath.Join(s.dir, name+".json"), nil
}

// Load returns the user's cache, or nil when none is stored.
func (s *LocalStore) Load(userID string) (*tender.LocalCache, error) {
	p, err := s.path(userID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read local cache: %w", err)
	}
	var c tender.LocalCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode local cache: %w", err)
	}
	return &c, nil
}

// Save replaces the user's cache. The write goes through a temp file so a
// crash never leaves a truncated entry behind.
func (s *LocalStore) Save(userID string, c *tender.LocalCache) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal local cache: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write local cache: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("replace local cache: %w", err)
	}
	return nil
}

// Clear removes the user's cache. Clearing a missing entry is not an error.
func (s *LocalStore) Clear(userID string) error {
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove local cache: %w", err)
	}
	return nil
}

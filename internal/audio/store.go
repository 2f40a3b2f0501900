package audio

import (
	"fmt"
	"os"
	"path/filepath"
)

// Store persists raw recording audio on the local filesystem. The database
// keeps only the path.
type Store struct {
	dir string
}

// NewStore creates an audio store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Save writes the raw audio bytes for a recording and returns the path.
func (s *Store) Save(recordingID string, raw []byte) (string, error) {
	path := filepath.Join(s.dir, recordingID+".wav")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write audio %q: %w", path, err)
	}
	return path, nil
}

// Load reads raw audio bytes back from a stored path.
func (s *Store) Load(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audio %q: %w", path, err)
	}
	return raw, nil
}

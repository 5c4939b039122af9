package cartsync

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"storefront/internal/domain/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// State is everything the client keeps between runs: the visible cart and
// the mutations not yet acknowledged by the server.
type State struct {
	Items  []entity.CartItem `json:"items"`
	Outbox []Operation       `json:"outbox,omitempty"`
}

// FileStore keeps the state in a single JSON file.
type FileStore struct {
	path string
}

// NewFileStore keeps the state at path. The file is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load returns an empty state when the file does not exist yet.
func (s *FileStore) Load() (State, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}

	if err != nil {
		return State{}, fmt.Errorf("os.ReadFile: %w", err)
	}

	var state State
	if err = json.Unmarshal(b, &state); err != nil {
		return State{}, fmt.Errorf("json.Unmarshal(%s): %w", s.path, err)
	}

	return state, nil
}

// Save replaces the file through a temp file and rename so a crash never
// leaves a partial cart behind.
func (s *FileStore) Save(state State) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}

	dir := filepath.Dir(s.path)

	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("os.MkdirAll: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cart-*.tmp")
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %w", err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err = tmp.Write(b); err != nil {
		tmp.Close()

		return fmt.Errorf("tmp.Write: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		tmp.Close()

		return fmt.Errorf("tmp.Sync: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("tmp.Close: %w", err)
	}

	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}

	return nil
}

package version

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vnvoice-dev/govoxsync/src/pkg/models"
)

// Store owns the persisted installed-state record. All mutations go
// through a single mutex so a commit for one kind never clobbers the
// other kind's field, and writes are temp-file plus rename so a reader
// never observes a partial record.
type Store struct {
	path  string
	state *models.InstalledState
	mu    sync.Mutex
}

// NewStore creates a store backed by the JSON file at path.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Load returns the installed state, reading it from disk on first use.
// A missing file yields the zero state. A file that exists but cannot be
// parsed yields the zero state together with ErrStorageCorrupt so the
// caller knows a full resync is being forced.
func (s *Store) Load() (models.InstalledState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return *s.state, err
	}
	return *s.state, nil
}

func (s *Store) loadLocked() error {
	if s.state != nil {
		return nil
	}

	s.state = &models.InstalledState{}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageCorrupt, err)
	}

	var state models.InstalledState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageCorrupt, err)
	}

	s.state = &state
	return nil
}

// Commit durably persists a new installed version for exactly one kind,
// leaving the other kind's field untouched.
func (s *Store) Commit(kind models.Kind, newVersion models.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A corrupt record is self-healing: commit rewrites it from scratch.
	_ = s.loadLocked()

	switch kind {
	case models.KindApplication:
		s.state.AppVersion = newVersion
	case models.KindModelSet:
		s.state.ModelManifestVersion = newVersion
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}

	return s.saveLocked()
}

// TouchChecked records the time of the last completed check for one kind.
func (s *Store) TouchChecked(kind models.Kind, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.loadLocked()

	if kind == models.KindApplication {
		s.state.LastAppCheck = &at
	} else {
		s.state.LastModelCheck = &at
	}

	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal installed state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write installed state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace installed state: %w", err)
	}
	return nil
}

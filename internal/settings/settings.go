// Package settings persists the bot's owner and admin identities.
// The on-disk format is a small JSON file compatible with the classic
// config.json layout (ownerJid / adminJids).
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/lo"
)

// Sentinel errors returned by mutation operations.
var (
	ErrOwnerAlreadySet = errors.New("settings: owner already set")
	ErrAlreadyAdmin    = errors.New("settings: identity is already an admin")
	ErrNotAdmin        = errors.New("settings: identity is not an admin")
)

// Settings is the persisted owner/admin state. Owner is set at most
// once and never reassigned by any command.
type Settings struct {
	Owner  string   `json:"ownerJid"`
	Admins []string `json:"adminJids"`
}

// Store owns the settings file. All mutations persist to disk before
// returning, so a confirmation sent after a mutation implies the change
// is durable.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	current Settings
}

// NewStore creates a store backed by the given file path.
func NewStore(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "settings"),
	}
}

// Load reads the settings file. A missing file is not an error; the
// store starts empty and the file is created on first mutation.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.current = Settings{}
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	s.current = loaded
	return nil
}

// Snapshot returns a copy of the current settings. Callers derive
// authorization from the snapshot; it never aliases store state.
func (s *Store) Snapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.current
	cp.Admins = append([]string(nil), s.current.Admins...)
	return cp
}

// ClaimOwner sets the owner to identity if no owner exists yet.
func (s *Store) ClaimOwner(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Owner != "" {
		return ErrOwnerAlreadySet
	}
	s.current.Owner = identity
	if err := s.saveLocked(); err != nil {
		s.current.Owner = ""
		return err
	}
	s.logger.Info("owner set", "identity", identity)
	return nil
}

// AddAdmin adds identity to the admin set.
func (s *Store) AddAdmin(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo.Contains(s.current.Admins, identity) {
		return ErrAlreadyAdmin
	}
	s.current.Admins = append(s.current.Admins, identity)
	if err := s.saveLocked(); err != nil {
		s.current.Admins = s.current.Admins[:len(s.current.Admins)-1]
		return err
	}
	s.logger.Info("admin added", "identity", identity)
	return nil
}

// RemoveAdmin removes identity from the admin set.
func (s *Store) RemoveAdmin(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !lo.Contains(s.current.Admins, identity) {
		return ErrNotAdmin
	}
	prev := s.current.Admins
	s.current.Admins = lo.Without(prev, identity)
	if err := s.saveLocked(); err != nil {
		s.current.Admins = prev
		return err
	}
	s.logger.Info("admin removed", "identity", identity)
	return nil
}

// saveLocked writes the settings to disk. Caller holds s.mu.
func (s *Store) saveLocked() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

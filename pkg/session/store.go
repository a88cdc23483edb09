package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"trustbridge/pkg/types"
)

const (
	DefaultFileName = ".trustbridge-session.json"
)

// state is the on-disk session
type state struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         *types.User `json:"user,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Store is the explicit session lifecycle: load on start, persist on change, clear on logout
type Store struct {
	filePath string
	mu       sync.RWMutex
	state    state
}

// DefaultPath returns ~/.trustbridge-session.json
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Open loads the session at filePath, or the default path when empty.
// A missing file yields an empty, unauthenticated session.
func Open(filePath string) (*Store, error) {
	if filePath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		filePath = p
	}

	s := &Store{filePath: filePath}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.filePath
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	return nil
}

// save writes the session; callers hold s.mu
func (s *Store) save() error {
	s.state.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// SetLogin stores the tokens and user returned by login
func (s *Store) SetLogin(user types.User, tokens types.AuthTokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user
	s.state.User = &u
	s.state.AccessToken = tokens.AccessToken
	s.state.RefreshToken = tokens.RefreshToken
	return s.save()
}

// SetAccessToken replaces the access token after a refresh
func (s *Store) SetAccessToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.AccessToken = token
	return s.save()
}

// Clear forgets the session and removes the file
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state{}
	if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// AccessToken returns the bearer token, empty when logged out
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken
}

// RefreshToken returns the refresh token
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken
}

// User returns the logged-in user, or nil
func (s *Store) User() *types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return nil
	}
	u := *s.state.User
	return &u
}

// IsAuthenticated reports whether an access token is stored
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken != ""
}

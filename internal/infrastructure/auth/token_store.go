package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Credential is one provider's stored token.
type Credential struct {
	Token string `json:"token"`
	Type  string `json:"type,omitempty"` // e.g. "oauth", "api_key"
}

// TokenStore persists provider credentials as JSON in a file readable
// only by the owner. Writes are read-modify-write so one provider's
// token never clobbers another's.
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// NewTokenStore creates a store backed by auth.json under dir.
func NewTokenStore(dir string) *TokenStore {
	return &TokenStore{path: filepath.Join(dir, "auth.json")}
}

// Path returns the backing file location.
func (s *TokenStore) Path() string {
	return s.path
}

// Get returns the credential for a provider. A missing or unreadable
// file, or an absent provider, yields (nil, nil): no token is not an
// error.
func (s *TokenStore) Get(provider string) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readAll()
	cred, ok := entries[provider]
	if !ok || cred.Token == "" {
		return nil, nil
	}
	return &cred, nil
}

// Save stores a provider's credential, preserving every other entry.
func (s *TokenStore) Save(provider string, cred Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readAll()
	entries[provider] = cred
	return s.writeAll(entries)
}

// Delete removes a provider's credential. Deleting an absent entry is a
// no-op.
func (s *TokenStore) Delete(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.readAll()
	if _, ok := entries[provider]; !ok {
		return nil
	}
	delete(entries, provider)
	return s.writeAll(entries)
}

// readAll tolerates missing and malformed files; both read as empty.
// Malformed content is only lost on the next Save.
func (s *TokenStore) readAll() map[string]Credential {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return make(map[string]Credential)
	}
	var entries map[string]Credential
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return make(map[string]Credential)
	}
	return entries
}

func (s *TokenStore) writeAll(entries map[string]Credential) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create auth dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	// WriteFile only applies the mode on create; clamp a pre-existing file.
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", s.path, err)
	}
	return nil
}

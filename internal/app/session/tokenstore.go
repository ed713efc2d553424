/*
Package session owns the authentication lifecycle: credentials in, token pair
and identity out, transparent access-token refresh, forced logout on refresh
failure.

This file defines the TokenStore, the only state that survives a process
restart. Tokens are kept under fixed key names so a restored process finds
them where the previous one left them.
*/
package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"lobbyhub/internal/api"
)

const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"
)

// TokenStore persists the TokenPair across process restarts.
type TokenStore interface {
	// Load returns the stored pair. A missing store yields zero values, not an error.
	Load() (api.TokenPair, error)

	// Save replaces the stored pair.
	Save(pair api.TokenPair) error

	// Clear removes any stored pair.
	Clear() error
}

// FileTokenStore keeps the pair as a small JSON object in a 0600 file.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore builds a store at path. An empty path selects
// lobbyhub/tokens.json under the user config directory.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(configDir, "lobbyhub", "tokens.json")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	return &FileTokenStore{path: path}, nil
}

func (s *FileTokenStore) Load() (api.TokenPair, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return api.TokenPair{}, nil
		}
		return api.TokenPair{}, err
	}

	var kv map[string]string
	if err := json.Unmarshal(raw, &kv); err != nil {
		// A corrupt store is treated as absent; the session simply restarts
		// unauthenticated.
		return api.TokenPair{}, nil
	}

	return api.TokenPair{
		Access:  kv[accessTokenKey],
		Refresh: kv[refreshTokenKey],
	}, nil
}

func (s *FileTokenStore) Save(pair api.TokenPair) error {
	kv := map[string]string{
		accessTokenKey:  pair.Access,
		refreshTokenKey: pair.Refresh,
	}

	raw, err := json.Marshal(kv)
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, raw, 0o600)
}

func (s *FileTokenStore) Clear() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryTokenStore is a TokenStore for tests and ephemeral sessions.
type MemoryTokenStore struct {
	pair api.TokenPair
}

func NewMemoryTokenStore() *MemoryTokenStore { return &MemoryTokenStore{} }

func (s *MemoryTokenStore) Load() (api.TokenPair, error) { return s.pair, nil }

func (s *MemoryTokenStore) Save(pair api.TokenPair) error {
	s.pair = pair
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.pair = api.TokenPair{}
	return nil
}

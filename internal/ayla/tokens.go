// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ayla

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

// TokenStore keeps the refresh token in a JSON file. Other keys in the
// file are preserved on write.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore validates that path names a .json file.
func NewTokenStore(path string) (*TokenStore, error) {
	if !strings.HasSuffix(path, ".json") {
		return nil, fmt.Errorf("%w: %s", ErrTokenPath, path)
	}
	return &TokenStore{path: path}, nil
}

// Path returns the backing file.
func (s *TokenStore) Path() string { return s.path }

// RefreshToken reads the stored token. When none is stored, an empty
// template is written so the user knows where to put one.
func (s *TokenStore) RefreshToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return "", err
	}
	tok, _ := doc["refresh_token"].(string)
	if tok == "" {
		if werr := s.write(doc, ""); werr != nil {
			return "", werr
		}
		return "", fmt.Errorf("%w: open %s and add a valid refresh token", ErrNoRefreshToken, s.path)
	}
	return tok, nil
}

// Save stores the refresh token atomically with mode 0600.
func (s *TokenStore) Save(refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return err
	}
	return s.write(doc, refreshToken)
}

func (s *TokenStore) read() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	doc := map[string]any{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse token file %s: %w", s.path, err)
	}
	return doc, nil
}

func (s *TokenStore) write(doc map[string]any, refreshToken string) error {
	doc["refresh_token"] = refreshToken
	buf, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending token file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(append(buf, '\n')); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace token file: %w", err)
	}
	return nil
}

// Package storage persists the small pieces of device state that must
// survive a process restart, currently the push-notification token.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const pushTokenFile = "push_token"

// PushTokenFileStore is a file-backed push-token store. It mirrors the
// device keystore the mobile client uses for its messaging token.
type PushTokenFileStore struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewPushTokenFileStore creates a store under baseDir, creating the
// directory if needed.
func NewPushTokenFileStore(baseDir string, log *slog.Logger) (*PushTokenFileStore, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &PushTokenFileStore{
		path: filepath.Join(baseDir, pushTokenFile),
		log:  log,
	}, nil
}

// Save writes the token atomically.
func (s *PushTokenFileStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write push token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store push token: %w", err)
	}

	s.log.Debug("Push token persisted")
	return nil
}

// Load returns the stored token, or an empty string if none was saved yet.
func (s *PushTokenFileStore) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read push token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

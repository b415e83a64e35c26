// Package media stores punch capture images. Storage failures are the
// caller's problem to swallow; this package just reports them.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"shiftclock/internal/types"

	"github.com/google/uuid"
)

// Store persists capture images and hands back stable references.
type Store interface {
	// Save writes the image and returns its reference key.
	Save(data []byte, userID uint, kind string) (string, error)
	// URL returns the retrievable URL for a reference key.
	URL(key string) string
}

// NewStore builds the local-disk store from configuration.
func NewStore(configManager types.ConfigManager) (Store, error) {
	cfg := configManager.GetMediaConfig()
	dir := cfg.Dir
	if dir == "" {
		dir = "./data/media"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(cfg.BaseURL, "/")}, nil
}

// LocalStore writes images under a flat directory keyed by UUID.
type LocalStore struct {
	dir     string
	baseURL string
}

func (s *LocalStore) Save(data []byte, userID uint, kind string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image payload")
	}
	key := fmt.Sprintf("%d_%s_%s.jpg", userID, kind, uuid.NewString())
	if err := os.WriteFile(filepath.Join(s.dir, key), data, 0644); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return key, nil
}

func (s *LocalStore) URL(key string) string {
	if key == "" {
		return ""
	}
	if s.baseURL == "" {
		return "/media/" + key
	}
	return s.baseURL + "/" + key
}

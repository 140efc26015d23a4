package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxPathHintLength = 32

var (
	errMissingDirectory = errors.New("storage: directory is required")
	errMissingBaseURL   = errors.New("storage: base url is required")
)

var extensionByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalStoreConfig describes a disk-backed image store.
type LocalStoreConfig struct {
	Directory string
	BaseURL   string
	Logger    *zap.Logger
}

// LocalStore keeps uploaded images as uuid-named files under one directory,
// served by the HTTP layer at the configured base URL.
type LocalStore struct {
	directory string
	baseURL   string
	logger    *zap.Logger
}

// NewLocalStore constructs the store and ensures its directory exists.
func NewLocalStore(cfg LocalStoreConfig) (*LocalStore, error) {
	if strings.TrimSpace(cfg.Directory) == "" {
		return nil, errMissingDirectory
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{directory: cfg.Directory, baseURL: baseURL, logger: logger}, nil
}

// Store writes the payload to disk and returns its public URL.
func (l *LocalStore) Store(_ context.Context, data []byte, contentType, pathHint string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrUploadFailed)
	}
	name := uuid.NewString() + extensionFor(contentType)
	if slug := slugify(pathHint); slug != "" {
		name = slug + "-" + name
	}
	target := filepath.Join(l.directory, name)
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	l.logger.Debug("image stored", zap.String("file", name), zap.Int("bytes", len(data)))
	return l.baseURL + "/" + name, nil
}

// Delete removes the file behind a URL this store issued. URLs outside the
// store's base, or files already gone, are ignored.
func (l *LocalStore) Delete(_ context.Context, publicURL string) error {
	if !strings.HasPrefix(publicURL, l.baseURL+"/") {
		return nil
	}
	name := path.Base(publicURL)
	if name == "" || name == "." || name == "/" {
		return nil
	}
	err := os.Remove(filepath.Join(l.directory, name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func extensionFor(contentType string) string {
	if ext, ok := extensionByContentType[strings.ToLower(strings.TrimSpace(contentType))]; ok {
		return ext
	}
	return ""
}

func slugify(hint string) string {
	var builder strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(hint)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			builder.WriteRune('-')
		}
		if builder.Len() >= maxPathHintLength {
			break
		}
	}
	return strings.Trim(builder.String(), "-")
}

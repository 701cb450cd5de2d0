package local

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/quka-ai/kbcore/pkg/types"
)

var ErrInvalidKey = errors.New("object key escapes the storage root")

// Storage keeps objects as files below Root.
type Storage struct {
	Root string
}

func New(root string) *Storage {
	return &Storage{Root: root}
}

func (s *Storage) path(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(key, "/"))
	if clean == "/" {
		return "", ErrInvalidKey
	}
	full := filepath.Join(s.Root, clean)
	root := filepath.Clean(s.Root)
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

func (s *Storage) SaveFile(ctx context.Context, key string, content []byte) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err = os.WriteFile(full, content, 0644); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

func (s *Storage) DownloadFile(ctx context.Context, key string) (*types.StoredObject, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return &types.StoredObject{Body: raw, ContentType: http.DetectContentType(raw)}, nil
}

func (s *Storage) DeleteFile(ctx context.Context, key string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Storage keeps source documents as flat files under one directory.
// Keys are reduced to their base name so a crafted key cannot escape
// the storage root.
type Storage struct {
	root string
}

func New(root string) (*Storage, error) {
	if root == "" {
		root = "./data/storage"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Storage{root: root}, nil
}

func (s *Storage) path(key string) string {
	return filepath.Join(s.root, filepath.Base(key))
}

// Save writes the document through a temp file and renames it into
// place, so readers never observe a partial write.
func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return fmt.Errorf("write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close document: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

func (s *Storage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return f, nil
}

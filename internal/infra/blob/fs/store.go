// Package fs stores blobs as files under a root directory. Each namespace
// is a directory, so it supports container create and delete.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/liunix61/uptane-server/internal/domain"
)

type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: invalid blob key %q", domain.ErrValidation, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Put writes to a temporary file next to the target and renames it into
// place, so readers never see a partial blob.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("write blob %s: got %d bytes, expected %d", key, written, size)
	}
	return os.Rename(tmp.Name(), target)
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(target)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, 0, domain.ErrNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, domain.ErrNotFound
	}
	return f, info.Size(), nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) CreateContainer(_ context.Context, namespaceID string) error {
	dir, err := s.path(namespaceID)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o750)
}

// DeleteContainer removes the namespace directory and everything in it.
func (s *Store) DeleteContainer(_ context.Context, namespaceID string) error {
	dir, err := s.path(namespaceID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

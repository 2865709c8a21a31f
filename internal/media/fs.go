// ABOUTME: Filesystem blob store used for single-node deployments
// ABOUTME: Objects are written atomically and served back under the public URL prefix

package media

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// FSStore stores objects as files below a root directory
type FSStore struct {
	root      string
	publicURL string
}

// NewFSStore creates the root directory if needed.
func NewFSStore(dir, publicURL string) (*FSStore, error) {
	if dir == "" {
		return nil, errors.New("media dir is required for the fs driver")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	return &FSStore{root: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Put implements Store.
func (s *FSStore) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("creating media dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing media: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing media: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming media: %w", err)
	}
	return s.publicURL + "/" + key, nil
}

// Get implements Store. The content type is derived from the extension, then sniffed.
func (s *FSStore) Get(_ context.Context, key string) (*Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading media: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(key))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return &Object{Data: data, ContentType: ct}, nil
}

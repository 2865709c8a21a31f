// ABOUTME: Blob store contract for attachment and avatar bytes
// ABOUTME: Selects the filesystem or S3 implementation from configuration

package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexdesk/chat-gateway/internal/config"
)

// ErrNotFound is returned when a key holds no object
var ErrNotFound = errors.New("media not found")

// ErrInvalidKey is returned for empty keys or keys escaping the store root
var ErrInvalidKey = errors.New("invalid media key")

// Object is a stored blob with its content type
type Object struct {
	Data        []byte
	ContentType string
}

// Store saves and serves opaque blobs by key
type Store interface {
	// Put stores data under key and returns the URL clients should use.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get reads the object stored under key.
	Get(ctx context.Context, key string) (*Object, error)
}

// Open builds the configured store. The "none" driver returns a nil Store.
func Open(ctx context.Context, cfg config.MediaConfig, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "fs":
		return NewFSStore(cfg.Dir, cfg.PublicURL)
	case "s3":
		return NewS3Store(ctx, cfg.S3, cfg.PublicURL, logger)
	default:
		return nil, fmt.Errorf("unknown media driver %q", cfg.Driver)
	}
}

// Key joins parts into a clean slash-separated key. Characters outside a
// conservative set are replaced with underscores.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				return r
			case r == '.' || r == '-' || r == '_':
				return r
			default:
				return '_'
			}
		}, strings.TrimSpace(p))
		p = strings.Trim(p, ".")
		if p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// cleanKey validates a caller-supplied key.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}

// ExtensionFor returns a file extension for a MIME type.
func ExtensionFor(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return ".jpg"
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "gif"):
		return ".gif"
	case strings.Contains(ct, "webp"):
		return ".webp"
	case strings.Contains(ct, "ogg"):
		return ".ogg"
	case strings.Contains(ct, "mpeg"):
		return ".mp3"
	case strings.Contains(ct, "pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}

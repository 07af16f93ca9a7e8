package object

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"studio-backend/internal/shared/util"
)

// ErrInvalidKey is returned for keys that escape the store root.
var ErrInvalidKey = errors.New("invalid storage key")

// Object describes a stored blob.
type Object struct {
	Key      string
	Size     int64
	MIMEType string
}

// ObjectStore persists generated media.
type ObjectStore interface {
	Put(ctx context.Context, userID, name, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can hand out direct download links.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// NewKey builds "<user prefix>/<yyyy>/<mm>/<uuid><ext>".
func NewKey(userID, name, contentType string, now time.Time) string {
	ext := util.MediaExtension(contentType, name)
	return path.Join(
		util.UserPrefix(userID),
		now.UTC().Format("2006"),
		now.UTC().Format("01"),
		uuid.NewString()+ext,
	)
}

// CleanKey rejects traversal and absolute keys.
func CleanKey(key string) (string, error) {
	clean := path.Clean(strings.TrimSpace(key))
	if clean == "." || clean == "" || strings.HasPrefix(clean, "..") || strings.HasPrefix(clean, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}

// Package artifact uploads client-captured media and returns a retrievable
// reference (a public URL) for it.
package artifact

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store persists binary artifacts.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Upload stores data with the given MIME type and returns a URL from which
	// it can be fetched.
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// ErrNotConfigured is returned by [Disabled] for every upload.
var ErrNotConfigured = errors.New("artifact: no artifact store configured")

// Disabled is a Store that rejects every upload. It stands in when no
// storage backend is configured so capture attempts fail with a clear message.
type Disabled struct{}

var _ Store = Disabled{}

// Upload always returns [ErrNotConfigured].
func (Disabled) Upload(context.Context, []byte, string) (string, error) {
	return "", ErrNotConfigured
}

// ObjectPrefix is the folder camera captures are written to.
const ObjectPrefix = "camera_uploads"

// ObjectName returns a unique object path of the form
// camera_uploads/20250301_120000_<32 hex chars>.<ext>.
func ObjectName(now time.Time, contentType string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ObjectPrefix + "/" + now.Format("20060102_150405") + "_" + id + "." + extension(contentType)
}

func extension(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	switch strings.ToLower(strings.TrimSpace(mt)) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "jpg"
	}
}

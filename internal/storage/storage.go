package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"marketplace-api/internal/config"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// File is one uploaded image waiting to be stored.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ImageStore turns uploaded files into opaque image references.
type ImageStore interface {
	Save(ctx context.Context, file File) (string, error)
	Delete(ctx context.Context, ref string) error
}

// New builds the store selected by IMAGE_BACKEND. The returned close func
// releases any client the store holds.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (ImageStore, func() error, error) {
	switch cfg.ImageBackend {
	case config.ImageBackendGCS:
		if cfg.GCSBucket == "" {
			return nil, nil, fmt.Errorf("GCS_BUCKET is required for the gcs image backend")
		}
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		logger.Info().Str("bucket", cfg.GCSBucket).Msg("Using GCS image store")
		return NewGCSStore(client, cfg.GCSBucket, cfg.GCSPublicBaseURL, logger), client.Close, nil
	case config.ImageBackendLocal, "":
		store, err := NewLocalStore(cfg.UploadDir, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("dir", cfg.UploadDir).Msg("Using local image store")
		return store, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown image backend %q", cfg.ImageBackend)
	}
}

// newToken returns a short random component for object names.
func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectName returns "<unix-millis>-<token>-<original name>" with path
// segments and unsafe characters removed from the original name. The token
// keeps same-named uploads in the same millisecond apart.
func objectName(now time.Time, token, original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "image"
	}
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), token, base)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

const gcsPrefix = "products/"

type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
	logger        zerolog.Logger
	now           func() time.Time
	token         func() string
}

func NewGCSStore(client *gcs.Client, bucket, publicBaseURL string, logger zerolog.Logger) *GCSStore {
	return &GCSStore{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
		now:           time.Now,
		token:         newToken,
	}
}

func (s *GCSStore) Save(ctx context.Context, file File) (string, error) {
	object := gcsPrefix + objectName(s.now(), s.token(), file.Name)

	w := s.client.Bucket(s.bucket).Object(object).If(gcs.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = file.ContentType
	w.CacheControl = "public, max-age=86400"

	if _, err := io.Copy(w, file.Reader); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload image bucket=%s object=%s: %w", s.bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload image bucket=%s object=%s: %w", s.bucket, object, err)
	}

	s.logger.Debug().Str("bucket", s.bucket).Str("object", object).Msg("Image uploaded")
	return s.publicURL(object), nil
}

// Delete removes the object behind a URL produced by Save. URLs for other
// buckets are ignored and a missing object counts as deleted.
func (s *GCSStore) Delete(ctx context.Context, ref string) error {
	object, ok := s.objectFromURL(ref)
	if !ok {
		return nil
	}

	err := s.client.Bucket(s.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete image bucket=%s object=%s: %w", s.bucket, object, err)
	}
	return nil
}

func (s *GCSStore) publicURL(object string) string {
	return s.publicBaseURL + "/" + s.bucket + "/" + object
}

func (s *GCSStore) objectFromURL(ref string) (string, bool) {
	prefix := s.publicBaseURL + "/" + s.bucket + "/"
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	object := strings.TrimPrefix(ref, prefix)
	if !strings.HasPrefix(object, gcsPrefix) || object == gcsPrefix {
		return "", false
	}
	return object, true
}

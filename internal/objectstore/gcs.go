package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
)

// maxAttempts bounds the retry wrapper around transient GCS failures. Spec
// component 4.B calls for at most 3 attempts per operation.
const maxAttempts = 3

// GCSStore is the production Store backed by a single GCS bucket. Grounded on
// the teacher's BucketService, collapsed from a two-bucket/category model down
// to one bucket since every artifact in this repo already carries its
// category in the key (queries/<slug>/videos/..., .../transcripts/...).
type GCSStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// clientOptionsFromEnv mirrors the teacher's credential resolution: an inline
// JSON blob takes precedence over a credentials file path, and an empty
// environment falls back to application-default credentials.
func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// NewGCSStore dials a storage.Client scoped to bucket. log is scoped with
// service=objectstore for every subsequent call.
func NewGCSStore(ctx context.Context, bucket string, log *logger.Logger) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket name is required")
	}
	opts := append(clientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: create storage client: %w", err)
	}
	return &GCSStore{
		log:    log.With("service", "objectstore", "bucket", bucket),
		client: client,
		bucket: bucket,
	}, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := withRetry(ctx, s.log, "get", key, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotExist) {
				return ErrNotFound
			}
			return err
		}
		defer r.Close()
		data, err = readAll(r)
		return err
	})
	return data, err
}

func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = ContentTypeForKey(key)
	}
	return withRetry(ctx, s.log, "put", key, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return fmt.Errorf("write: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close writer: %w", err)
		}
		return nil
	})
}

func (s *GCSStore) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	var out []ObjectMeta
	err := withRetry(ctx, s.log, "list", prefix, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		out = out[:0]
		it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if err == iterator.Done {
				return nil
			}
			if err != nil {
				return err
			}
			out = append(out, ObjectMeta{Key: attrs.Name, Size: attrs.Size})
		}
	})
	return out, err
}

func (s *GCSStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	return withRetry(ctx, s.log, "copy", srcKey+"->"+dstKey, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		src := s.client.Bucket(s.bucket).Object(srcKey)
		dst := s.client.Bucket(s.bucket).Object(dstKey)
		_, err := dst.CopierFrom(src).Run(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrNotFound
		}
		return err
	})
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PublicURL returns this bucket's public HTTPS URL for key, preferring a
// configured CDN domain over the default storage.googleapis.com host.
// Grounded on the teacher's BucketService.GetPublicURL.
func (s *GCSStore) PublicURL(key string) string {
	cdn := strings.TrimSpace(os.Getenv("OBJECTSTORE_CDN_DOMAIN"))
	if cdn != "" {
		return "https://" + cdn + "/" + key
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
}

func (s *GCSStore) GetJSON(ctx context.Context, key string, out any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *GCSStore) PutJSON(ctx context.Context, key string, in any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("objectstore: marshal %s: %w", key, err)
	}
	return s.Put(ctx, key, data, "application/json")
}

// withRetry runs fn up to maxAttempts times with jittered exponential backoff,
// stopping immediately on ErrNotFound or a non-retryable googleapi status.
func withRetry(ctx context.Context, log *logger.Logger, op, key string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrNotFound) || !isRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		log.Debug("objectstore operation failed, retrying", "op", op, "key", key, "attempt", attempt, "error", err.Error())
		wait := backoff(attempt)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("objectstore: %s %s failed after %d attempts: %w", op, key, maxAttempts, lastErr)
}

func backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

func isRetryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// Package objectstore implements the typed get/put/list/copy adapter over a
// content-addressed bucket (spec component 4.B), plus the read-only legacy-key
// fallback strategy described in spec component 4.A.
package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// ErrNotFound is returned by Get/GetJSON when the key does not exist. Callers
// compare with errors.Is, never string matching.
var ErrNotFound = errors.New("objectstore: not found")

// IsNotFound reports whether err (or any error it wraps) is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ObjectMeta is one entry returned by List.
type ObjectMeta struct {
	Key  string
	Size int64
}

// Store is the typed adapter every component in this repo uses to read and
// write artifacts. put is always create-or-overwrite; get on a missing key
// returns ErrNotFound, never a generic error, so callers can implement the
// legacy-key fallback without string-sniffing.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetJSON(ctx context.Context, key string, out any) error
	PutJSON(ctx context.Context, key string, in any) error
}

// legacyFallbackCount is incremented every time a caller resolves a key via
// GetWithLegacyFallback / GetJSONWithLegacyFallback and the canonical key was
// missing. It exists so the eventual deprecation of the legacy layout has a
// concrete signal to watch instead of grepping logs.
var legacyFallbackCount int64

// LegacyFallbackCount returns the number of legacy-key reads observed by this
// process since startup. Exported for tests and for a future metrics exporter.
func LegacyFallbackCount() int64 { return atomic.LoadInt64(&legacyFallbackCount) }

// GetWithLegacyFallback tries canonicalKey first; on ErrNotFound it tries each
// legacyKey in order. Writers must never call this — only readers resolving
// artifacts that may predate the queries/<slug>/... layout.
func GetWithLegacyFallback(ctx context.Context, s Store, canonicalKey string, legacyKeys ...string) ([]byte, error) {
	data, err := s.Get(ctx, canonicalKey)
	if err == nil {
		return data, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	for _, lk := range legacyKeys {
		data, lerr := s.Get(ctx, lk)
		if lerr == nil {
			atomic.AddInt64(&legacyFallbackCount, 1)
			return data, nil
		}
		if !IsNotFound(lerr) {
			return nil, lerr
		}
	}
	return nil, ErrNotFound
}

// GetJSONWithLegacyFallback is the JSON-decoding counterpart of
// GetWithLegacyFallback.
func GetJSONWithLegacyFallback(ctx context.Context, s Store, out any, canonicalKey string, legacyKeys ...string) error {
	data, err := GetWithLegacyFallback(ctx, s, canonicalKey, legacyKeys...)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// PublicURLer is implemented by Store backends that can serve an artifact
// directly over HTTPS (GCSStore). MemoryStore does not implement it.
type PublicURLer interface {
	PublicURL(key string) string
}

// PublicURLOrKey returns s.PublicURL(key) when s implements PublicURLer,
// otherwise key itself, so callers recording a combined-video URL always get
// a usable reference string regardless of backend.
func PublicURLOrKey(s Store, key string) string {
	if p, ok := s.(PublicURLer); ok {
		return p.PublicURL(key)
	}
	return key
}

// ContentTypeForKey infers a content type from a key's file extension, for
// writers that don't pin one explicitly.
func ContentTypeForKey(key string) string {
	k := strings.ToLower(key)
	if i := strings.IndexByte(k, '?'); i >= 0 {
		k = k[:i]
	}
	switch {
	case strings.HasSuffix(k, ".json"):
		return "application/json"
	case strings.HasSuffix(k, ".txt"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(k, ".mp4"), strings.HasSuffix(k, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(k, ".webm"):
		return "video/webm"
	case strings.HasSuffix(k, ".mov"):
		return "video/quicktime"
	case strings.HasSuffix(k, ".jpg"), strings.HasSuffix(k, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(k, ".png"):
		return "image/png"
	case strings.HasSuffix(k, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read: %w", err)
	}
	return data, nil
}

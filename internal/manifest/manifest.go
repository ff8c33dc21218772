// Package manifest implements the per-query manifest upsert (spec component
// 4.C): a single JSON object per slug, read-modify-written under a per-slug
// advisory lock so concurrent activities never race on the same artifact.
package manifest

import (
	"context"
	"fmt"

	"github.com/oxbowlabs/vqueryd/internal/naming"
	"github.com/oxbowlabs/vqueryd/internal/objectstore"
	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
)

// VideoStatus is a VideoRecord's lifecycle stage. Terminal states are
// StatusSummarized and StatusFailed.
type VideoStatus string

const (
	StatusDiscovered  VideoStatus = "discovered"
	StatusDownloaded  VideoStatus = "downloaded"
	StatusTranscribed VideoStatus = "transcribed"
	StatusSummarized  VideoStatus = "summarized"
	StatusFailed      VideoStatus = "failed"
)

// VideoRecord tracks one discovered URL through its sub-pipeline. ObjectKey
// is the dedupe key: two upserts naming the same ObjectKey merge into one
// record rather than appending a second.
type VideoRecord struct {
	URL           string      `json:"url"`
	ObjectKey     string      `json:"object_key,omitempty"`
	TranscriptKey string      `json:"transcript_key,omitempty"`
	ThumbnailKey  string      `json:"thumbnail_key,omitempty"`
	Status        VideoStatus `json:"status"`
	SearchQuery   string      `json:"search_query,omitempty"`
	Summary       string      `json:"summary,omitempty"`
	Keywords      []string    `json:"keywords,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// CombinedBlock mirrors internal/combined's output keys so the manifest can
// point readers at the aggregated artifacts without re-deriving paths.
type CombinedBlock struct {
	OutputKey        string `json:"output_key,omitempty"`
	TranscriptionKey string `json:"transcription_key,omitempty"`
	KeywordsKey      string `json:"keywords_key,omitempty"`
	SentenceKey      string `json:"sentence_key,omitempty"`
	VideoKey         string `json:"video_key,omitempty"`
	Status           string `json:"status,omitempty"`
}

// QueryManifest is the whole-object JSON document at queries/<slug>/manifest.json.
type QueryManifest struct {
	Query    string         `json:"query"`
	Slug     string         `json:"slug"`
	Videos   []VideoRecord  `json:"videos"`
	Combined CombinedBlock  `json:"combined"`
	Extra    map[string]any `json:"-"`
}

// Partial is the caller-supplied delta passed to Upsert. Any field left at
// its zero value is left untouched by the merge, except Videos which always
// merges by ObjectKey (a VideoRecord with an empty ObjectKey is always
// appended as a new record, matching the spec's "unknown keys appended"
// rule).
type Partial struct {
	Query    string
	Videos   []VideoRecord
	Combined *CombinedBlock
}

// Store is the sole writer of queries/<slug>/manifest.json. Concurrent
// Upserts for the same slug are serialized by Locker.
type Store struct {
	objects objectstore.Store
	locker  Locker
	log     *logger.Logger
}

func NewStore(objects objectstore.Store, locker Locker, log *logger.Logger) *Store {
	return &Store{objects: objects, locker: locker, log: log.With("service", "manifest")}
}

// Upsert performs the read-modify-write described in spec component 4.C,
// holding the per-slug lock for the duration. Returns ConflictLocked if the
// lock cannot be acquired within the Locker's configured wait.
func (s *Store) Upsert(ctx context.Context, slug string, partial Partial) (QueryManifest, error) {
	unlock, err := s.locker.Lock(ctx, slug)
	if err != nil {
		return QueryManifest{}, err
	}
	defer unlock()

	key := naming.ManifestKey(slug)
	current, err := s.read(ctx, key, slug, partial.Query)
	if err != nil {
		return QueryManifest{}, err
	}

	merged := mergeManifest(current, partial)
	merged.Slug = slug
	if merged.Query == "" {
		merged.Query = partial.Query
	}

	if err := s.objects.PutJSON(ctx, key, merged); err != nil {
		return QueryManifest{}, fmt.Errorf("manifest: write %s: %w", key, err)
	}
	return merged, nil
}

// Get reads the current manifest without locking; callers that only read
// (e.g. the request-status path) don't need to serialize against writers.
func (s *Store) Get(ctx context.Context, slug string) (QueryManifest, error) {
	return s.read(ctx, naming.ManifestKey(slug), slug, "")
}

func (s *Store) read(ctx context.Context, key, slug, fallbackQuery string) (QueryManifest, error) {
	var m QueryManifest
	err := s.objects.GetJSON(ctx, key, &m)
	if err == nil {
		return m, nil
	}
	if objectstore.IsNotFound(err) {
		return QueryManifest{Slug: slug, Query: fallbackQuery, Videos: []VideoRecord{}}, nil
	}
	return QueryManifest{}, fmt.Errorf("manifest: read %s: %w", key, err)
}

func mergeManifest(current QueryManifest, partial Partial) QueryManifest {
	out := current
	if partial.Query != "" {
		out.Query = partial.Query
	}
	out.Videos = mergeVideos(current.Videos, partial.Videos)
	if partial.Combined != nil {
		out.Combined = mergeCombined(current.Combined, *partial.Combined)
	}
	return out
}

// mergeVideos merges by ObjectKey: a partial record whose ObjectKey matches
// an existing one overlays non-zero fields onto it; everything else
// (including records with an empty ObjectKey, which can't be deduped yet) is
// appended.
func mergeVideos(existing, partials []VideoRecord) []VideoRecord {
	out := make([]VideoRecord, len(existing))
	copy(out, existing)

	index := make(map[string]int, len(out))
	for i, v := range out {
		if v.ObjectKey != "" {
			index[v.ObjectKey] = i
		}
	}

	for _, p := range partials {
		if p.ObjectKey == "" {
			out = append(out, p)
			continue
		}
		if i, ok := index[p.ObjectKey]; ok {
			out[i] = mergeVideoRecord(out[i], p)
			continue
		}
		index[p.ObjectKey] = len(out)
		out = append(out, p)
	}
	return out
}

func mergeVideoRecord(base, partial VideoRecord) VideoRecord {
	out := base
	if partial.URL != "" {
		out.URL = partial.URL
	}
	if partial.ObjectKey != "" {
		out.ObjectKey = partial.ObjectKey
	}
	if partial.TranscriptKey != "" {
		out.TranscriptKey = partial.TranscriptKey
	}
	if partial.ThumbnailKey != "" {
		out.ThumbnailKey = partial.ThumbnailKey
	}
	if partial.Status != "" {
		out.Status = partial.Status
	}
	if partial.SearchQuery != "" {
		out.SearchQuery = partial.SearchQuery
	}
	if partial.Summary != "" {
		out.Summary = partial.Summary
	}
	if len(partial.Keywords) > 0 {
		out.Keywords = partial.Keywords
	}
	if partial.Error != "" {
		out.Error = partial.Error
	}
	return out
}

func mergeCombined(base, partial CombinedBlock) CombinedBlock {
	out := base
	if partial.OutputKey != "" {
		out.OutputKey = partial.OutputKey
	}
	if partial.TranscriptionKey != "" {
		out.TranscriptionKey = partial.TranscriptionKey
	}
	if partial.KeywordsKey != "" {
		out.KeywordsKey = partial.KeywordsKey
	}
	if partial.SentenceKey != "" {
		out.SentenceKey = partial.SentenceKey
	}
	if partial.VideoKey != "" {
		out.VideoKey = partial.VideoKey
	}
	if partial.Status != "" {
		out.Status = partial.Status
	}
	return out
}

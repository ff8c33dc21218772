package combined

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vqueryd/internal/manifest"
	"github.com/oxbowlabs/vqueryd/internal/naming"
	"github.com/oxbowlabs/vqueryd/internal/objectstore"
	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
	"github.com/oxbowlabs/vqueryd/internal/transcript"
)

func newTestBuilder(t *testing.T, client *fakeLLM) (*Builder, objectstore.Store) {
	t.Helper()
	store := objectstore.NewMemoryStore()
	mstore := manifest.NewStore(store, manifest.NewInMemoryLocker(), logger.Nop())
	b := NewBuilder(store, mstore, client, nil, logger.Nop())
	b.NowFunc = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }
	return b, store
}

// fakeLLM always fails so Build exercises the deterministic fallback paths in
// internal/keyword without needing a scripted schema-shaped response.
type fakeLLM struct{}

func (fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, errFakeUnavailable
}
func (fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	return "", errFakeUnavailable
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

var errFakeUnavailable = fakeErr("fake llm unavailable")

func putTranscript(t *testing.T, store objectstore.Store, slug, videoKey string, doc transcript.Transcript) {
	t.Helper()
	key := naming.TranscriptKeyFromVideoKey(videoKey)
	require.NotEmpty(t, key)
	require.NoError(t, store.PutJSON(context.Background(), key, doc))
}

func TestBuild_NoTranscripts(t *testing.T) {
	b, store := newTestBuilder(t, &fakeLLM{})
	out, err := b.Build(context.Background(), "empty query", nil)
	require.NoError(t, err)
	require.Equal(t, 0, out.Count)
	require.Equal(t, "no-transcripts", out.Status)
	require.Empty(t, out.CombinedKeywords)

	slug := naming.Slug("empty query")
	var written Output
	require.NoError(t, store.GetJSON(context.Background(), naming.CombinedOutputKey(slug), &written))
	require.Equal(t, "no-transcripts", written.Status)
}

func TestBuild_HallucinationFilterDropsUngroundedCandidates(t *testing.T) {
	b, store := newTestBuilder(t, &fakeLLM{})
	slug := naming.Slug("rocket launches")

	videoA := naming.VideosKey(slug, "vidA.mp4")
	videoB := naming.VideosKey(slug, "vidB.mp4")
	putTranscript(t, store, slug, videoA, transcript.Transcript{
		Text: "The rocket launch was delayed due to weather. Engineers inspected the booster carefully.",
		Segments: []transcript.Segment{
			{Start: 0, End: 5, Text: "The rocket launch was delayed due to weather."},
			{Start: 5, End: 10, Text: "Engineers inspected the booster carefully."},
		},
	})
	putTranscript(t, store, slug, videoB, transcript.Transcript{
		Text: "The booster separated cleanly after the rocket launch.",
		Segments: []transcript.Segment{
			{Start: 0, End: 6, Text: "The booster separated cleanly after the rocket launch."},
		},
	})

	out, err := b.Build(context.Background(), "rocket launches", []CompletedVideo{
		{VideoObject: videoA},
		{VideoObject: videoB},
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	require.Equal(t, "ok", out.Status)

	for _, kw := range out.CombinedKeywords {
		require.Greater(t, kw.Count, 0, "keyword %q must be grounded in the combined text", kw.Term)
	}

	var storedKeywords []map[string]any
	raw, err := store.Get(context.Background(), naming.CombinedKeywordsKey(slug))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &storedKeywords))

	sentenceText, err := store.Get(context.Background(), naming.CombinedSentenceKey(slug))
	require.NoError(t, err)
	require.NotEmpty(t, sentenceText)

	var m manifest.QueryManifest
	require.NoError(t, store.GetJSON(context.Background(), naming.ManifestKey(slug), &m))
	require.Equal(t, "ok", m.Combined.Status)
	require.Equal(t, naming.CombinedOutputKey(slug), m.Combined.OutputKey)
}

func TestBuild_CJKQueryKeepsOnlyCJKKeywords(t *testing.T) {
	b, store := newTestBuilder(t, &fakeLLM{})
	slug := naming.Slug("人工智能")

	video := naming.VideosKey(slug, "vid.mp4")
	putTranscript(t, store, slug, video, transcript.Transcript{
		Text: "人工智能正在改变世界。机器学习是人工智能的核心。",
		Segments: []transcript.Segment{
			{Start: 0, End: 4, Text: "人工智能正在改变世界。"},
			{Start: 4, End: 8, Text: "机器学习是人工智能的核心。"},
		},
	})

	out, err := b.Build(context.Background(), "人工智能", []CompletedVideo{{VideoObject: video}})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
	for _, kw := range out.CombinedKeywords {
		require.True(t, containsCJKRune(kw.Term), "expected only CJK keywords, got %q", kw.Term)
	}
}

func containsCJKRune(s string) bool {
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			return true
		}
	}
	return false
}

func TestBuild_SkipsTranscriptMissingFromStore(t *testing.T) {
	b, store := newTestBuilder(t, &fakeLLM{})
	slug := naming.Slug("missing transcript case")

	present := naming.VideosKey(slug, "present.mp4")
	putTranscript(t, store, slug, present, transcript.Transcript{
		Text:     "A short clip about gardening tips for beginners.",
		Segments: []transcript.Segment{{Start: 0, End: 3, Text: "A short clip about gardening tips for beginners."}},
	})
	missing := naming.VideosKey(slug, "missing.mp4")

	out, err := b.Build(context.Background(), "missing transcript case", []CompletedVideo{
		{VideoObject: present},
		{VideoObject: missing},
	})
	require.NoError(t, err)
	require.Equal(t, 1, out.Count)
}

package naming

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slugShape = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func TestSlug_Determinism(t *testing.T) {
	cases := []string{
		"Anti gravity",
		"  Anti gravity  ",
		"anti   gravity",
		"人工智能",
		"",
		"   ",
		"C++ tutorials!!",
		"2026 roadmap",
	}
	for _, q := range cases {
		s1 := Slug(q)
		s2 := Slug(q)
		require.Equal(t, s1, s2, "slug must be deterministic for %q", q)
		if s1 != "batch" {
			assert.Regexp(t, slugShape, s1, "slug %q for query %q must be path-safe", s1, q)
		}
	}
}

func TestSlug_WhitespaceInsensitive(t *testing.T) {
	assert.Equal(t, Slug("Anti gravity"), Slug("  Anti gravity  "))
}

func TestSlug_EmptyDefaultsToBatch(t *testing.T) {
	assert.Equal(t, "batch", Slug(""))
	assert.Equal(t, "batch", Slug("   "))
	assert.Equal(t, "batch", Slug("!!!"))
}

func TestSlug_CJKTransliterates(t *testing.T) {
	s := Slug("人工智能")
	assert.Regexp(t, slugShape, s)
	assert.NotEmpty(t, s)
	assert.NotEqual(t, "batch", s)
}

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "queries/anti-gravity/videos/foo.mp4", VideosKey("anti-gravity", "foo.mp4"))
	assert.Equal(t, "queries/anti-gravity/manifest.json", ManifestKey("anti-gravity"))
	assert.Equal(t, "queries/anti-gravity/combined/combined-output.json", CombinedOutputKey("anti-gravity"))
}

func TestTranscriptKeyFromVideoKey(t *testing.T) {
	got := TranscriptKeyFromVideoKey("queries/anti-gravity/videos/abc123.mp4")
	assert.Equal(t, "queries/anti-gravity/transcripts/abc123.json", got)
}

func TestLegacyKeys(t *testing.T) {
	assert.Equal(t, "videos/foo.mp4", LegacyVideoKey("foo.mp4"))
	assert.Equal(t, "process/batch-anti-gravity/combined-output.json", LegacyCombinedOutputKey("anti-gravity"))
}

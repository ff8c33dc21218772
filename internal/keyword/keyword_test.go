package keyword

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vqueryd/internal/llm"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "rockets", Normalize("Rockets's"))
	assert.Equal(t, "anti gravity", Normalize("  Anti-Gravity!!  "))
}

func TestCount_LatinWordBoundary(t *testing.T) {
	assert.Equal(t, 2, Count("cat", "the cat sat, a cat ran"))
	assert.Equal(t, 0, Count("cat", "category catalog"))
}

func TestCount_CJKSubstring(t *testing.T) {
	assert.Equal(t, 2, Count("重力", "反重力研究：重力波探测与重力异常"))
}

func TestLowQuality(t *testing.T) {
	assert.True(t, LowQuality("the"))
	assert.True(t, LowQuality("123"))
	assert.True(t, LowQuality("x"))
	assert.False(t, LowQuality("ai"))
	assert.False(t, LowQuality("gravity"))
}

func TestMergeWithCounts_HallucinationFilter(t *testing.T) {
	text := "gravity is a force. space is big."
	candidates := []Keyword{
		{Term: "gravity", Score: 0.9},
		{Term: "unicorn", Score: 0.8}, // not in text
		{Term: "space", Score: 0.7},
	}
	merged := MergeWithCounts(candidates, text)
	for _, k := range merged {
		assert.GreaterOrEqual(t, k.Count, 1, "every surviving keyword must be grounded in the text")
		assert.NotEqual(t, "unicorn", k.Term)
	}
}

func TestMergeWithCounts_Ordering(t *testing.T) {
	text := "alpha beta gamma alpha beta alpha"
	candidates := []Keyword{
		{Term: "beta", Score: 0.5},
		{Term: "alpha", Score: 0.5},
		{Term: "gamma", Score: 0.9},
	}
	merged := MergeWithCounts(candidates, text)
	require.Len(t, merged, 3)
	assert.Equal(t, "gamma", merged[0].Term, "higher score sorts first")
	assert.Equal(t, "alpha", merged[1].Term, "tie on score breaks by higher count")
	assert.Equal(t, "beta", merged[2].Term)
}

func TestMergeWithCounts_DedupeKeepsMaxScore(t *testing.T) {
	text := "gravity gravity gravity"
	candidates := []Keyword{
		{Term: "gravity", Score: 0.3},
		{Term: "Gravity", Score: 0.9},
	}
	merged := MergeWithCounts(candidates, text)
	require.Len(t, merged, 1)
	assert.Equal(t, 0.9, merged[0].Score)
	assert.Equal(t, 3, merged[0].Count)
}

func TestApplyCoverageCompensation_CoreKeepPreserved(t *testing.T) {
	transcripts := []string{
		"alpha beta content about rockets",
		"completely different topic: submarines and sonar",
	}
	combined := []Keyword{
		{Term: "alpha", Score: 0.9, Count: 1},
		{Term: "beta", Score: 0.8, Count: 1},
		{Term: "rockets", Score: 0.5, Count: 1},
	}
	perTranscript := [][]Keyword{
		{{Term: "alpha", Score: 0.9, Count: 1}},
		{{Term: "submarines", Score: 0.95, Count: 1}, {Term: "sonar", Score: 0.7, Count: 1}},
	}

	final, replaceCount := ApplyCoverageCompensation(combined, transcripts, perTranscript)

	require.GreaterOrEqual(t, len(final), CoreKeep)
	assert.Equal(t, "alpha", final[0].Term, "CORE_KEEP prefix must be unchanged")
	assert.Equal(t, "beta", final[1].Term, "CORE_KEEP prefix must be unchanged")
	assert.LessOrEqual(t, replaceCount, MaxReplace)

	covered := false
	for _, k := range final {
		if Count(k.Term, transcripts[1]) > 0 {
			covered = true
		}
	}
	assert.True(t, covered, "the previously-uncovered transcript must gain coverage")
}

func TestApplyCoverageCompensation_BoundedReplacements(t *testing.T) {
	combined := []Keyword{
		{Term: "a", Score: 0.9, Count: 1},
		{Term: "b", Score: 0.8, Count: 1},
		{Term: "c", Score: 0.1, Count: 1},
	}
	// No transcript contains any of combined's terms or any per-transcript
	// candidate, so transcript 0 stays uncovered after its only candidate is
	// swapped in and the loop stops: the replacement count stays within
	// MaxReplace.
	transcripts := make([]string, 6)
	perTranscript := make([][]Keyword, 6)
	for i := range transcripts {
		transcripts[i] = "unrelated filler text"
		perTranscript[i] = []Keyword{{Term: "filler" + string(rune('a'+i)), Score: 0.99, Count: 1}}
	}

	_, replaceCount := ApplyCoverageCompensation(combined, transcripts, perTranscript)
	assert.LessOrEqual(t, replaceCount, MaxReplace)
}

func TestFilterLanguage_CJKQueryKeepsOnlyCJKTerms(t *testing.T) {
	ks := []Keyword{{Term: "重力"}, {Term: "gravity"}}
	out := FilterLanguage(ks, true)
	require.Len(t, out, 1)
	assert.Equal(t, "重力", out[0].Term)
}

func TestExtract_FallsBackWhenLLMUnavailable(t *testing.T) {
	fc := &llm.FakeClient{} // unconfigured: always errors
	text := "gravity gravity physics physics physics space"
	got := Extract(context.Background(), fc, "physics", text, 3)
	require.NotEmpty(t, got)
	for _, k := range got {
		assert.GreaterOrEqual(t, k.Count, 1)
	}
}

func TestExtract_UsesLLMCandidatesWhenAvailable(t *testing.T) {
	fc := &llm.FakeClient{
		JSONFunc: func(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
			return map[string]any{
				"keywords": []any{
					map[string]any{"term": "gravity", "score": 0.95},
				},
			}, nil
		},
	}
	got := Extract(context.Background(), fc, "gravity", "gravity pulls objects toward mass", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "gravity", got[0].Term)
}

func TestAggregateByMaxScoreSumCount(t *testing.T) {
	perVideo := [][]Keyword{
		{{Term: "gravity", Score: 0.5, Count: 2}},
		{{Term: "gravity", Score: 0.8, Count: 3}},
	}
	out := AggregateByMaxScoreSumCount(perVideo)
	require.Len(t, out, 1)
	assert.Equal(t, 0.8, out[0].Score)
	assert.Equal(t, 5, out[0].Count)
}

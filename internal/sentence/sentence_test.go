package sentence

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxbowlabs/vqueryd/internal/keyword"
)

func TestSplitSentences_LatinAndCJK(t *testing.T) {
	got := SplitSentences("Gravity pulls objects. Does it? Yes! 重力很重要。你知道吗？")
	require.Len(t, got, 5)
	assert.Equal(t, "Gravity pulls objects", got[0])
	assert.Equal(t, "重力很重要", got[3])
}

func TestSplitSentences_TrimsEmpties(t *testing.T) {
	got := SplitSentences("one.\n\ntwo.  !  three")
	for _, s := range got {
		assert.NotEmpty(t, strings.TrimSpace(s))
	}
}

func TestFindWithKeyword(t *testing.T) {
	sentences := []string{"no match here", "gravity is a force", "space is big"}
	s, ok := FindWithKeyword(sentences, "gravity")
	require.True(t, ok)
	assert.Equal(t, "gravity is a force", s)

	_, ok = FindWithKeyword(sentences, "unicorn")
	assert.False(t, ok)
}

func TestTrimAround_ShortSentenceUnchanged(t *testing.T) {
	s := "gravity is a force"
	assert.Equal(t, s, TrimAround(s, "gravity", 220))
}

func TestTrimAround_LongSentenceCentersAndMarks(t *testing.T) {
	long := strings.Repeat("filler ", 60) + "gravity" + strings.Repeat(" filler", 60)
	out := TrimAround(long, "gravity", 220)
	assert.LessOrEqual(t, len([]rune(out)), 226) // 220 + up to two "..." markers
	assert.True(t, strings.Contains(out, "gravity"))
	assert.True(t, strings.HasPrefix(out, "...") || strings.HasSuffix(out, "..."))
}

func TestExtractKeySentenceItems_OnePerTranscriptInPrimaryPass(t *testing.T) {
	transcripts := []string{
		"intro text. gravity pulls things down. outro text.",
		"other topic here. nothing relevant at all.",
	}
	keywords := []keyword.Keyword{{Term: "gravity"}}

	items := ExtractKeySentenceItems(transcripts, keywords, 5)
	require.NotEmpty(t, items)

	seenSources := map[int]int{}
	for _, it := range items[:min2(len(items), len(transcripts))] {
		seenSources[it.SourceIndex]++
	}
	for _, count := range seenSources {
		assert.LessOrEqual(t, count, 1, "primary pass must contribute at most one sentence per transcript")
	}
}

func TestExtractKeySentenceItems_FallsBackToFirstSentence(t *testing.T) {
	transcripts := []string{"nothing about the topic here. second sentence."}
	keywords := []keyword.Keyword{{Term: "unrelated-term-xyz"}}

	items := ExtractKeySentenceItems(transcripts, keywords, 5)
	require.Len(t, items, 1)
	assert.Equal(t, "nothing about the topic here", items[0].Sentence)
}

func TestExtractCombinedSentence_EndsWithTerminator(t *testing.T) {
	transcripts := []string{"gravity pulls objects down"}
	keywords := []keyword.Keyword{{Term: "gravity"}}
	combined := ExtractCombinedSentence(transcripts, keywords, 5)
	require.NotEmpty(t, combined)
	last := []rune(combined)[len([]rune(combined))-1]
	assert.True(t, last == '.' || last == '!' || last == '?' || last == '。' || last == '！' || last == '？')
}

func TestExtractCombinedSentence_EmptyWhenNoTranscripts(t *testing.T) {
	assert.Equal(t, "", ExtractCombinedSentence(nil, nil, 5))
}

func min2(a, b int) int {
	if a < b {
		return a
	}
	return b
}

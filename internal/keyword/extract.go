package keyword

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/oxbowlabs/vqueryd/internal/llm"
)

// schema is the json_schema passed to llm.Client.GenerateJSON for keyword
// extraction: an array of {term, score} candidates.
var schema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"keywords": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"term":  map[string]any{"type": "string"},
					"score": map[string]any{"type": "number"},
				},
				"required": []string{"term", "score"},
			},
		},
	},
	"required": []string{"keywords"},
}

// Extract prompts the LLM for up to k (term, score) candidates in the
// query's script, then grounds them against text via MergeWithCounts. Any
// LLM failure (network, refusal, malformed JSON) falls back to a
// deterministic token-frequency ranking so the pipeline never stalls on a
// flaky provider.
func Extract(ctx context.Context, client llm.Client, query, text string, k int) []Keyword {
	candidates, err := extractViaLLM(ctx, client, query, text, k)
	if err != nil || len(candidates) == 0 {
		candidates = fallbackCandidates(text, k)
	}
	merged := MergeWithCounts(candidates, text)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

func extractViaLLM(ctx context.Context, client llm.Client, query, text string, k int) ([]Keyword, error) {
	if client == nil {
		return nil, errNoClient
	}
	lang := "English"
	if containsCJK(query) {
		lang = "Chinese"
	}
	system := "You extract search keywords from a video transcript. Respond only in " + lang + ". Output terms that literally appear in the text."
	user := "Query: " + query + "\n\nExtract up to this many distinct keywords: " + strconv.Itoa(k) + "\n\nTranscript:\n" + truncateForPrompt(text)

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()
	out, err := client.GenerateJSON(ctx, system, user, "keyword_candidates", schema)
	if err != nil {
		return nil, err
	}
	raw, ok := out["keywords"].([]any)
	if !ok {
		return nil, errMalformed
	}
	candidates := make([]Keyword, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		term, _ := m["term"].(string)
		score, _ := m["score"].(float64)
		if term == "" {
			continue
		}
		candidates = append(candidates, Keyword{Term: term, Score: score})
	}
	return candidates, nil
}

// llmTimeout bounds one keyword-extraction LLM call, retries included.
const llmTimeout = 5 * time.Second

// truncateForPrompt caps the transcript text sent to the LLM so keyword
// extraction stays under its tight (≤5s) request budget even for long
// videos.
func truncateForPrompt(text string) string {
	const maxRunes = 6000
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes])
}

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

// fallbackCandidates is the deterministic token-frequency backstop: split
// text into latin words and individual CJK characters, count occurrences,
// drop low-quality tokens, and score by normalized frequency.
func fallbackCandidates(text string, k int) []Keyword {
	freq := make(map[string]int)
	for _, tok := range tokenize(text) {
		norm := Normalize(tok)
		if norm == "" || LowQuality(norm) {
			continue
		}
		freq[norm]++
	}
	if len(freq) == 0 {
		return nil
	}
	maxFreq := 0
	for _, c := range freq {
		if c > maxFreq {
			maxFreq = c
		}
	}
	out := make([]Keyword, 0, len(freq))
	for term, count := range freq {
		out = append(out, Keyword{Term: term, Score: float64(count) / float64(maxFreq), Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRe.FindAllString(text, -1) {
		if containsCJK(word) {
			for _, r := range word {
				tokens = append(tokens, string(r))
			}
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

var errNoClient = strErr("keyword: no llm client configured")
var errMalformed = strErr("keyword: malformed llm response")

type strErr string

func (e strErr) Error() string { return string(e) }

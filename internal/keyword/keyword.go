// Package keyword implements the LLM-assisted candidate extraction,
// hallucination filtering, and coverage-compensation selection algorithm of
// spec component 4.G. No pack repo does this kind of text analysis, so the
// algorithm itself is new; it follows the teacher's preference for small,
// independently testable pure functions (same shape as naming.Slug) wired
// into a single LLM client interface (internal/llm).
package keyword

import (
	"regexp"
	"sort"
	"strings"
)

const (
	TopK       = 5
	CoreKeep   = 2
	MaxReplace = 3
)

// Keyword is the single canonical shape every keyword-bearing artifact uses,
// replacing the source's mixed tuple/string/dict representations (spec
// section 9: "keyword shape is a single canonical Keyword{term,score,count}").
type Keyword struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
	Count int     `json:"count"`
}

var (
	possessiveRe = regexp.MustCompile(`'s\b`)
	punctRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases term, strips a trailing possessive, removes
// punctuation, and collapses whitespace.
func Normalize(term string) string {
	t := strings.ToLower(strings.TrimSpace(term))
	t = possessiveRe.ReplaceAllString(t, "")
	t = punctRe.ReplaceAllString(t, " ")
	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// Count returns the number of occurrences of term in text: CJK terms use a
// plain substring match (CJK text has no latin-style word boundaries),
// Latin terms use a \b..\b regex so "cat" doesn't match "category".
func Count(term, text string) int {
	term = strings.TrimSpace(term)
	if term == "" {
		return 0
	}
	if containsCJK(term) {
		return strings.Count(text, term)
	}
	pattern := `(?i)\b` + regexp.QuoteMeta(term) + `\b`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return strings.Count(strings.ToLower(text), strings.ToLower(term))
	}
	return len(re.FindAllStringIndex(text, -1))
}

// ContainsCJK reports whether s contains at least one CJK-script rune. It is
// the query-language test spec 4.I's "CJK-query ⇒ CJK terms only" rule keys
// off of.
func ContainsCJK(s string) bool { return containsCJK(s) }

func containsCJK(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF,
			r >= 0x3400 && r <= 0x4DBF,
			r >= 0xF900 && r <= 0xFAFF,
			r >= 0x3040 && r <= 0x30FF,
			r >= 0xAC00 && r <= 0xD7A3:
			return true
		}
	}
	return false
}

// singleCharAllowList are the only single-latin-character-equivalent tokens
// that pass LowQuality despite their short length.
var singleCharAllowList = map[string]bool{
	"ai": true, "llm": true, "gpu": true, "cpu": true, "api": true, "sdk": true,
}

var hasLetterRe = regexp.MustCompile(`\p{L}`)
var pureDigitRe = regexp.MustCompile(`^[\p{N}\s]+$`)

// LowQuality rejects generic stop-words, latin tokens of one or two letters
// outside the allow list, pure-digit tokens, and tokens with no letter at
// all.
func LowQuality(term string) bool {
	t := Normalize(term)
	if t == "" {
		return true
	}
	if stoplist[t] {
		return true
	}
	if pureDigitRe.MatchString(t) {
		return true
	}
	if !hasLetterRe.MatchString(t) {
		return true
	}
	if !containsCJK(t) && len([]rune(t)) <= 2 && !singleCharAllowList[t] {
		return true
	}
	return false
}

// MergeWithCounts normalizes each candidate, grounds it against text via
// Count (dropping any candidate with count==0 — the hallucination filter),
// deduplicates by term keeping the max score, and sorts by
// (score DESC, count DESC, term ASC).
func MergeWithCounts(candidates []Keyword, text string) []Keyword {
	byTerm := make(map[string]Keyword)
	for _, c := range candidates {
		term := Normalize(c.Term)
		if term == "" {
			continue
		}
		count := Count(term, text)
		if count == 0 {
			continue
		}
		if existing, ok := byTerm[term]; ok {
			if c.Score <= existing.Score {
				continue
			}
		}
		byTerm[term] = Keyword{Term: term, Score: c.Score, Count: count}
	}

	out := make([]Keyword, 0, len(byTerm))
	for _, k := range byTerm {
		out = append(out, k)
	}
	sortKeywords(out)
	return out
}

func sortKeywords(ks []Keyword) {
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].Score != ks[j].Score {
			return ks[i].Score > ks[j].Score
		}
		if ks[i].Count != ks[j].Count {
			return ks[i].Count > ks[j].Count
		}
		return ks[i].Term < ks[j].Term
	})
}

// ComputeCoverage returns, for each keyword (by index into keywords), the
// set of transcript indices (by index into transcripts) that contain it.
func ComputeCoverage(keywords []Keyword, transcripts []string) []map[int]bool {
	coverage := make([]map[int]bool, len(keywords))
	for i, k := range keywords {
		set := make(map[int]bool)
		for ti, t := range transcripts {
			if Count(k.Term, t) > 0 {
				set[ti] = true
			}
		}
		coverage[i] = set
	}
	return coverage
}

// ApplyCoverageCompensation implements spec 4.G: starting from combined's
// top TopK, repeatedly swap the weakest replaceable slot (outside the first
// CoreKeep) for a candidate drawn from the lowest-index uncovered
// transcript's own per-transcript ranking, up to MaxReplace times.
// perTranscript[i] is the per-video keyword ranking for transcripts[i].
func ApplyCoverageCompensation(combined []Keyword, transcripts []string, perTranscript [][]Keyword) ([]Keyword, int) {
	final := topN(combined, TopK)
	replaceCount := 0

	for replaceCount < MaxReplace {
		uncovered := firstUncoveredTranscript(final, transcripts)
		if uncovered < 0 {
			break
		}
		if uncovered >= len(perTranscript) {
			break
		}
		candidate, ok := firstCandidateNotIn(perTranscript[uncovered], final)
		if !ok {
			break
		}
		replaceIdx, ok := weakestReplaceableIndex(final, transcripts)
		if !ok {
			break
		}
		final[replaceIdx] = candidate
		sortTail(final, CoreKeep)
		replaceCount++
	}
	return final, replaceCount
}

// sortTail re-sorts ks[from:] in place by (score DESC, count DESC, term ASC)
// without disturbing ks[:from], so the protected CoreKeep prefix survives
// coverage-compensation replacements exactly as the initial sort produced
// it, even when a swapped-in candidate would otherwise outrank it.
func sortTail(ks []Keyword, from int) {
	if from >= len(ks) {
		return
	}
	tail := ks[from:]
	sort.Slice(tail, func(i, j int) bool {
		if tail[i].Score != tail[j].Score {
			return tail[i].Score > tail[j].Score
		}
		if tail[i].Count != tail[j].Count {
			return tail[i].Count > tail[j].Count
		}
		return tail[i].Term < tail[j].Term
	})
}

func topN(ks []Keyword, n int) []Keyword {
	if len(ks) <= n {
		out := make([]Keyword, len(ks))
		copy(out, ks)
		return out
	}
	out := make([]Keyword, n)
	copy(out, ks[:n])
	return out
}

func firstUncoveredTranscript(final []Keyword, transcripts []string) int {
	for i, t := range transcripts {
		covered := false
		for _, k := range final {
			if Count(k.Term, t) > 0 {
				covered = true
				break
			}
		}
		if !covered {
			return i
		}
	}
	return -1
}

func firstCandidateNotIn(ranked []Keyword, final []Keyword) (Keyword, bool) {
	present := make(map[string]bool, len(final))
	for _, k := range final {
		present[k.Term] = true
	}
	for _, c := range ranked {
		if !present[c.Term] {
			return c, true
		}
	}
	return Keyword{}, false
}

// weakestReplaceableIndex picks, among final[CoreKeep:], the index with the
// smallest (coverage_count, score, count) tuple — the least-defensible slot.
func weakestReplaceableIndex(final []Keyword, transcripts []string) (int, bool) {
	if len(final) <= CoreKeep {
		return 0, false
	}
	best := -1
	var bestCoverage int
	for i := CoreKeep; i < len(final); i++ {
		cov := 0
		for _, t := range transcripts {
			if Count(final[i].Term, t) > 0 {
				cov++
			}
		}
		if best == -1 ||
			cov < bestCoverage ||
			(cov == bestCoverage && final[i].Score < final[best].Score) ||
			(cov == bestCoverage && final[i].Score == final[best].Score && final[i].Count < final[best].Count) {
			best = i
			bestCoverage = cov
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// FilterLanguage keeps only terms containing a CJK character when queryIsCJK
// is true, matching spec 4.I's "CJK-query ⇒ CJK terms only" rule. It is a
// no-op (returns ks unchanged) for non-CJK queries.
func FilterLanguage(ks []Keyword, queryIsCJK bool) []Keyword {
	if !queryIsCJK {
		return ks
	}
	out := make([]Keyword, 0, len(ks))
	for _, k := range ks {
		if containsCJK(k.Term) {
			out = append(out, k)
		}
	}
	return out
}

// FilterQuality drops terms LowQuality rejects.
func FilterQuality(ks []Keyword) []Keyword {
	out := make([]Keyword, 0, len(ks))
	for _, k := range ks {
		if !LowQuality(k.Term) {
			out = append(out, k)
		}
	}
	return out
}

// AggregateByMaxScoreSumCount rebuilds a combined ranking from per-video
// rankings when coverage compensation leaves nothing (spec 4.I step 5): for
// each term, keep its max score across videos and sum its counts.
func AggregateByMaxScoreSumCount(perVideo [][]Keyword) []Keyword {
	agg := make(map[string]*Keyword)
	for _, ranking := range perVideo {
		for _, k := range ranking {
			cur, ok := agg[k.Term]
			if !ok {
				cp := k
				agg[k.Term] = &cp
				continue
			}
			if k.Score > cur.Score {
				cur.Score = k.Score
			}
			cur.Count += k.Count
		}
	}
	out := make([]Keyword, 0, len(agg))
	for _, k := range agg {
		out = append(out, *k)
	}
	sortKeywords(out)
	return out
}

// Package sentence implements evidence-sentence selection over per-video
// transcripts (spec component 4.H). New domain logic, grounded in the same
// small-pure-function style as internal/keyword and internal/naming.
package sentence

import (
	"regexp"
	"strings"

	"github.com/oxbowlabs/vqueryd/internal/keyword"
)

const (
	maxTrimLen = 220
	maxItems   = 5
)

var (
	terminatorRe = regexp.MustCompile(`[.!?。！？]`)
	splitRe      = regexp.MustCompile(`[.!?。！？\n]+`)
)

// SplitSentences splits text on Latin (. ! ?) and CJK (。！？) terminators
// and newlines, trimming whitespace and dropping empties.
func SplitSentences(text string) []string {
	raw := splitRe.Split(text, -1)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FindWithKeyword returns the first sentence containing keyword under the
// same matcher rule keyword.Count uses, or "" if none match.
func FindWithKeyword(sentences []string, kw string) (string, bool) {
	for _, s := range sentences {
		if keyword.Count(kw, s) > 0 {
			return s, true
		}
	}
	return "", false
}

// TrimAround centers a maxLen-rune window on keyword's first occurrence in
// sentence, prepending/appending "..." when the sentence had to be cut.
func TrimAround(sentence, kw string, maxLen int) string {
	runes := []rune(sentence)
	if len(runes) <= maxLen {
		return sentence
	}

	idx := indexOfKeyword(sentence, kw)
	if idx < 0 {
		idx = 0
	}
	center := runeIndexForByteOffset(sentence, idx)

	half := maxLen / 2
	start := center - half
	end := center + half
	if start < 0 {
		end -= start
		start = 0
	}
	if end > len(runes) {
		start -= end - len(runes)
		end = len(runes)
	}
	if start < 0 {
		start = 0
	}

	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	return prefix + string(runes[start:end]) + suffix
}

func indexOfKeyword(sentence, kw string) int {
	if kw == "" {
		return -1
	}
	return strings.Index(strings.ToLower(sentence), strings.ToLower(kw))
}

func runeIndexForByteOffset(s string, byteOffset int) int {
	if byteOffset < 0 {
		return 0
	}
	count := 0
	for i := range s {
		if i >= byteOffset {
			return count
		}
		count++
	}
	return count
}

// KeySentenceItem is one selected evidence sentence.
type KeySentenceItem struct {
	Sentence    string
	Keyword     string
	SourceIndex int
}

// ExtractKeySentenceItems implements the two-pass selection in spec 4.H:
// a primary pass picks at most one sentence per transcript (the first
// sentence containing any of keywords, or the transcript's first sentence
// otherwise), then a backfill pass scans all (transcript, sentence) pairs
// for each keyword in order until max items are collected.
func ExtractKeySentenceItems(transcripts []string, keywords []keyword.Keyword, max int) []KeySentenceItem {
	if max <= 0 {
		max = maxItems
	}
	seen := make(map[string]bool)
	var items []KeySentenceItem

	for ti, transcript := range transcripts {
		sentences := SplitSentences(transcript)
		if len(sentences) == 0 {
			continue
		}
		matchedSentence := ""
		matchedKeyword := ""
		for _, k := range keywords {
			if s, ok := FindWithKeyword(sentences, k.Term); ok {
				matchedSentence = s
				matchedKeyword = k.Term
				break
			}
		}
		if matchedSentence == "" {
			matchedSentence = sentences[0]
		}
		trimmed := TrimAround(matchedSentence, matchedKeyword, maxTrimLen)
		if seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		items = append(items, KeySentenceItem{Sentence: trimmed, Keyword: matchedKeyword, SourceIndex: ti})
		if len(items) >= max {
			return items
		}
	}

	for _, k := range keywords {
		if len(items) >= max {
			break
		}
		for ti, transcript := range transcripts {
			if len(items) >= max {
				break
			}
			sentences := SplitSentences(transcript)
			for _, s := range sentences {
				if keyword.Count(k.Term, s) == 0 {
					continue
				}
				trimmed := TrimAround(s, k.Term, maxTrimLen)
				if seen[trimmed] {
					continue
				}
				seen[trimmed] = true
				items = append(items, KeySentenceItem{Sentence: trimmed, Keyword: k.Term, SourceIndex: ti})
				if len(items) >= max {
					break
				}
			}
		}
	}

	return items
}

// ExtractCombinedSentence joins the sentences from ExtractKeySentenceItems
// with single spaces, guaranteeing the result ends with a terminator when
// non-empty.
func ExtractCombinedSentence(transcripts []string, keywords []keyword.Keyword, max int) string {
	items := ExtractKeySentenceItems(transcripts, keywords, max)
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.Sentence
	}
	combined := strings.Join(parts, " ")
	runes := []rune(combined)
	if len(runes) == 0 || !terminatorRe.MatchString(string(runes[len(runes)-1])) {
		combined += "."
	}
	return combined
}

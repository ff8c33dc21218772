// Package combined implements the end-of-batch aggregation step (spec
// component 4.I): merge many per-video transcripts into one combined
// transcript, a coverage-compensated top-5 keyword set, up to five evidence
// sentences, and (best-effort) a stitched highlight video. It is the one
// place in this repo that calls both internal/keyword and internal/sentence
// against a whole batch at once.
package combined

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oxbowlabs/vqueryd/internal/keyword"
	"github.com/oxbowlabs/vqueryd/internal/llm"
	"github.com/oxbowlabs/vqueryd/internal/manifest"
	"github.com/oxbowlabs/vqueryd/internal/naming"
	"github.com/oxbowlabs/vqueryd/internal/objectstore"
	"github.com/oxbowlabs/vqueryd/internal/platform/logger"
	"github.com/oxbowlabs/vqueryd/internal/sentence"
	"github.com/oxbowlabs/vqueryd/internal/transcript"
)

const (
	combinedKeywordFetch  = 50
	perVideoKeywordFetch  = 30
	maxKeySentences       = 5
	sentenceVersionCurrent = 1
)

// TranscriptRef names one transcript folded into a CombinedOutput.
type TranscriptRef struct {
	VideoObject   string `json:"video_object"`
	TranscriptKey string `json:"transcript_key"`
	TextLen       int    `json:"text_len"`
}

// KeySentenceItem is one selected evidence sentence, with its source video
// resolved back from sentence.KeySentenceItem's transcript index.
type KeySentenceItem struct {
	Sentence          string `json:"sentence"`
	Keyword           string `json:"keyword"`
	SourceIndex       int    `json:"source_index"`
	SourceVideoObject string `json:"source_video_object"`
}

// Output is the per-query CombinedOutput artifact (spec section 3).
type Output struct {
	Query                   string            `json:"query"`
	Count                   int               `json:"count"`
	ReplaceCount            int               `json:"replaceCount"`
	Transcripts             []TranscriptRef   `json:"transcripts"`
	CombinedTranscription   string            `json:"combined_transcription"`
	CombinedKeywords        []keyword.Keyword `json:"combined_keywords"`
	KeySentences            []KeySentenceItem `json:"key_sentences"`
	CombinedSentence        string            `json:"combined_sentence"`
	CombinedVideoKey        string            `json:"combined_video_key,omitempty"`
	CombinedVideoURL        string            `json:"combined_video_url,omitempty"`
	CombinedVideoClipCount  int               `json:"combined_video_clip_count,omitempty"`
	CombinedRebuiltAtUTC    string            `json:"combined_rebuilt_at_utc,omitempty"`
	CombinedSentenceVersion int               `json:"combined_sentence_version,omitempty"`
	Status                  string            `json:"status,omitempty"`
}

// CompletedVideo is one Pipeline Runner sub-pipeline that reached
// StatusSummarized, as passed into Build by the build_combined activity.
type CompletedVideo struct {
	VideoObject string
}

// Builder is the sole implementation of spec component 4.I. NowFunc lets
// callers stub "now" for deterministic tests; it defaults to time.Now in
// NewBuilder.
type Builder struct {
	Store    objectstore.Store
	Manifest *manifest.Store
	LLM      llm.Client
	Stitcher Stitcher // nil disables the optional stitched-video step
	Log      *logger.Logger
	NowFunc  func() time.Time
}

func NewBuilder(store objectstore.Store, manifestStore *manifest.Store, client llm.Client, stitcher Stitcher, log *logger.Logger) *Builder {
	return &Builder{
		Store:    store,
		Manifest: manifestStore,
		LLM:      client,
		Stitcher: stitcher,
		Log:      log.With("service", "combined"),
		NowFunc:  time.Now,
	}
}

// Build implements spec 4.I steps 1-7. It never returns an error for missing
// or empty transcripts (step 2's "no-transcripts" case is a valid, fully
// written artifact, not a failure) — only object-store or manifest write
// failures are surfaced.
func (b *Builder) Build(ctx context.Context, query string, completed []CompletedVideo) (Output, error) {
	slug := naming.Slug(query)

	items, refs := b.loadTranscripts(ctx, completed)
	if len(items) == 0 {
		out := b.emptyOutput(query, "no-transcripts")
		if err := b.writeArtifacts(ctx, slug, out); err != nil {
			return Output{}, err
		}
		if err := b.upsertManifest(ctx, slug, query, out); err != nil {
			return Output{}, err
		}
		return out, nil
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.text
	}
	combinedText := strings.Join(texts, "\n\n---\n\n")

	combinedKeywords := keyword.Extract(ctx, b.LLM, query, combinedText, combinedKeywordFetch)
	perVideo := b.extractPerVideoKeywords(ctx, query, texts)

	final, replaceCount := keyword.ApplyCoverageCompensation(combinedKeywords, texts, perVideo)
	queryIsCJK := keyword.ContainsCJK(query)
	final = keyword.FilterQuality(keyword.FilterLanguage(final, queryIsCJK))
	if len(final) == 0 {
		agg := keyword.AggregateByMaxScoreSumCount(perVideo)
		final = keyword.FilterQuality(keyword.FilterLanguage(agg, queryIsCJK))
	}
	if len(final) > keyword.TopK {
		final = final[:keyword.TopK]
	}

	rawSentenceItems := sentence.ExtractKeySentenceItems(texts, final, maxKeySentences)
	combinedSentence := sentence.ExtractCombinedSentence(texts, final, maxKeySentences)

	keySentences := make([]KeySentenceItem, len(rawSentenceItems))
	for i, it := range rawSentenceItems {
		videoObject := ""
		if it.SourceIndex >= 0 && it.SourceIndex < len(items) {
			videoObject = items[it.SourceIndex].videoObject
		}
		keySentences[i] = KeySentenceItem{
			Sentence:          it.Sentence,
			Keyword:           it.Keyword,
			SourceIndex:       it.SourceIndex,
			SourceVideoObject: videoObject,
		}
	}

	out := Output{
		Query:                   query,
		Count:                   len(items),
		ReplaceCount:            replaceCount,
		Transcripts:             refs,
		CombinedTranscription:   combinedText,
		CombinedKeywords:        final,
		KeySentences:            keySentences,
		CombinedSentence:        combinedSentence,
		CombinedSentenceVersion: sentenceVersionCurrent,
		CombinedRebuiltAtUTC:    b.now().UTC().Format(time.RFC3339),
		Status:                  "ok",
	}

	if b.Stitcher != nil {
		videoKey, url, clipCount, err := b.buildStitchedVideo(ctx, slug, items, rawSentenceItems)
		if err != nil {
			b.Log.Warn("stitched video build failed; continuing without it", "query", query, "error", err.Error())
		} else if videoKey != "" {
			out.CombinedVideoKey = videoKey
			out.CombinedVideoURL = url
			out.CombinedVideoClipCount = clipCount
		}
	}

	if err := b.writeArtifacts(ctx, slug, out); err != nil {
		return Output{}, err
	}
	if err := b.upsertManifest(ctx, slug, query, out); err != nil {
		return Output{}, err
	}
	return out, nil
}

type transcriptItem struct {
	videoObject   string
	transcriptKey string
	text          string
	doc           transcript.Transcript
}

// loadTranscripts implements step 1: canonical key first, legacy key on
// NotFound, skip entries whose resolved text is empty.
func (b *Builder) loadTranscripts(ctx context.Context, completed []CompletedVideo) ([]transcriptItem, []TranscriptRef) {
	items := make([]transcriptItem, 0, len(completed))
	refs := make([]TranscriptRef, 0, len(completed))
	for _, c := range completed {
		key := naming.TranscriptKeyFromVideoKey(c.VideoObject)
		if key == "" {
			continue
		}
		var doc transcript.Transcript
		err := objectstore.GetJSONWithLegacyFallback(ctx, b.Store, &doc, key, legacyTranscriptKeyFor(key))
		if err != nil {
			if !objectstore.IsNotFound(err) {
				b.Log.Warn("combined: transcript read failed", "video_object", c.VideoObject, "error", err.Error())
			}
			continue
		}
		text := strings.TrimSpace(doc.Text)
		if text == "" {
			continue
		}
		items = append(items, transcriptItem{videoObject: c.VideoObject, transcriptKey: key, text: text, doc: doc})
		refs = append(refs, TranscriptRef{VideoObject: c.VideoObject, TranscriptKey: key, TextLen: len([]rune(text))})
	}
	return items, refs
}

func legacyTranscriptKeyFor(canonicalKey string) string {
	idx := strings.LastIndex(canonicalKey, "/")
	if idx < 0 || idx+1 >= len(canonicalKey) {
		return ""
	}
	return naming.LegacyTranscriptKey(canonicalKey[idx+1:])
}

// extractPerVideoKeywords runs keyword.Extract concurrently across texts,
// bounded by errgroup the way the teacher fans out per-item work in
// internal/jobs/learning/steps (e.g. node_figures_render.go).
func (b *Builder) extractPerVideoKeywords(ctx context.Context, query string, texts []string) [][]keyword.Keyword {
	perVideo := make([][]keyword.Keyword, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range texts {
		i := i
		g.Go(func() error {
			perVideo[i] = keyword.Extract(gctx, b.LLM, query, texts[i], perVideoKeywordFetch)
			return nil
		})
	}
	_ = g.Wait() // keyword.Extract never returns an error; the group only bounds concurrency
	return perVideo
}

func (b *Builder) emptyOutput(query, status string) Output {
	return Output{
		Query:                   query,
		Count:                   0,
		Transcripts:             []TranscriptRef{},
		CombinedTranscription:   "",
		CombinedKeywords:        []keyword.Keyword{},
		KeySentences:            []KeySentenceItem{},
		CombinedSentence:        "",
		CombinedSentenceVersion: sentenceVersionCurrent,
		CombinedRebuiltAtUTC:    b.now().UTC().Format(time.RFC3339),
		Status:                  status,
	}
}

func (b *Builder) now() time.Time {
	if b.NowFunc == nil {
		return time.Now()
	}
	return b.NowFunc()
}

func (b *Builder) writeArtifacts(ctx context.Context, slug string, out Output) error {
	if err := b.Store.PutJSON(ctx, naming.CombinedOutputKey(slug), out); err != nil {
		return fmt.Errorf("combined: write output: %w", err)
	}
	if err := b.Store.Put(ctx, naming.CombinedTranscriptionKey(slug), []byte(out.CombinedTranscription), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("combined: write transcription: %w", err)
	}
	if err := b.Store.PutJSON(ctx, naming.CombinedKeywordsKey(slug), out.CombinedKeywords); err != nil {
		return fmt.Errorf("combined: write keywords: %w", err)
	}
	if err := b.Store.Put(ctx, naming.CombinedSentenceKey(slug), []byte(out.CombinedSentence), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("combined: write sentence: %w", err)
	}
	return nil
}

func (b *Builder) upsertManifest(ctx context.Context, slug, query string, out Output) error {
	block := &manifest.CombinedBlock{
		OutputKey:        naming.CombinedOutputKey(slug),
		TranscriptionKey: naming.CombinedTranscriptionKey(slug),
		KeywordsKey:      naming.CombinedKeywordsKey(slug),
		SentenceKey:      naming.CombinedSentenceKey(slug),
		VideoKey:         out.CombinedVideoKey,
		Status:           out.Status,
	}
	_, err := b.Manifest.Upsert(ctx, slug, manifest.Partial{Query: query, Combined: block})
	if err != nil {
		return fmt.Errorf("combined: upsert manifest: %w", err)
	}
	return nil
}

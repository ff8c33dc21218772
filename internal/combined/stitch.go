package combined

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/oxbowlabs/vqueryd/internal/keyword"
	"github.com/oxbowlabs/vqueryd/internal/naming"
	"github.com/oxbowlabs/vqueryd/internal/objectstore"
	"github.com/oxbowlabs/vqueryd/internal/sentence"
)

// clipTargetWidth/Height/FPS and the scale/pad filter match the original
// implementation's rebuild_combined_output.py ffmpeg invocation so stitched
// output stays visually consistent with batches rebuilt by the old tooling.
const (
	clipTargetWidth  = 1280
	clipTargetHeight = 720
	clipTargetFPS    = 30
	clipPreset       = "veryfast"
	clipCRF          = "24"
	clipPadSeconds   = 1.5
	maxClips         = 5
)

// Clip is one re-encoded segment destined for the final concat.
type Clip struct {
	SourcePath string
	Start      float64
	End        float64
}

// Stitcher builds a single highlight video from a set of source video files
// and the time windows to pull from each. Build is best-effort by design: the
// Combined Builder logs and discards any error rather than failing the whole
// batch over a missing ffmpeg binary or a bad source file.
type Stitcher interface {
	Stitch(ctx context.Context, clips []Clip, outPath string) error
}

// FFmpegStitcher shells out to the ffmpeg binary on PATH. Grounded 1:1 on the
// original implementation's scripts/rebuild_combined_output.py: each window is
// re-encoded to a uniform resolution/framerate/codec, then concatenated via
// ffmpeg's concat demuxer, falling back to a full re-encode concat if the fast
// stream-copy path fails (mismatched source codecs are common across scraped
// sources).
type FFmpegStitcher struct {
	Bin     string // defaults to "ffmpeg"
	WorkDir string // defaults to os.TempDir()
}

func NewFFmpegStitcher() *FFmpegStitcher {
	return &FFmpegStitcher{Bin: "ffmpeg", WorkDir: os.TempDir()}
}

func (f *FFmpegStitcher) bin() string {
	if f.Bin == "" {
		return "ffmpeg"
	}
	return f.Bin
}

func (f *FFmpegStitcher) workDir() string {
	if f.WorkDir == "" {
		return os.TempDir()
	}
	return f.WorkDir
}

func (f *FFmpegStitcher) Stitch(ctx context.Context, clips []Clip, outPath string) error {
	if len(clips) == 0 {
		return fmt.Errorf("combined: stitch called with no clips")
	}
	scratch, err := os.MkdirTemp(f.workDir(), "combined-stitch-*")
	if err != nil {
		return fmt.Errorf("combined: create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	encoded := make([]string, 0, len(clips))
	for i, c := range clips {
		dst := filepath.Join(scratch, fmt.Sprintf("clip-%02d.mp4", i))
		if err := f.encodeClip(ctx, c, dst); err != nil {
			return fmt.Errorf("combined: encode clip %d: %w", i, err)
		}
		encoded = append(encoded, dst)
	}

	if err := f.concat(ctx, scratch, encoded, outPath, true); err != nil {
		if err := f.concat(ctx, scratch, encoded, outPath, false); err != nil {
			return fmt.Errorf("combined: concat clips: %w", err)
		}
	}
	return nil
}

func (f *FFmpegStitcher) encodeClip(ctx context.Context, c Clip, dst string) error {
	filter := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black,fps=%d",
		clipTargetWidth, clipTargetHeight, clipTargetWidth, clipTargetHeight, clipTargetFPS,
	)
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", c.Start),
		"-to", fmt.Sprintf("%.3f", c.End),
		"-i", c.SourcePath,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", clipPreset,
		"-crf", clipCRF,
		"-c:a", "aac",
		"-ar", "48000",
		"-ac", "2",
		dst,
	}
	cmd := exec.CommandContext(ctx, f.bin(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, truncateOutput(out))
	}
	return nil
}

func (f *FFmpegStitcher) concat(ctx context.Context, scratch string, clipPaths []string, outPath string, streamCopy bool) error {
	listPath := filepath.Join(scratch, "concat.txt")
	var b strings.Builder
	for _, p := range clipPaths {
		b.WriteString("file '" + p + "'\n")
	}
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath}
	if streamCopy {
		args = append(args, "-c", "copy")
	} else {
		args = append(args, "-c:v", "libx264", "-preset", clipPreset, "-crf", clipCRF, "-c:a", "aac")
	}
	args = append(args, outPath)

	cmd := exec.CommandContext(ctx, f.bin(), args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concat: %w: %s", err, truncateOutput(out))
	}
	return nil
}

func truncateOutput(b []byte) string {
	const max = 2000
	if len(b) <= max {
		return string(b)
	}
	return string(b[len(b)-max:])
}

// ClipWindow expands a matched segment's [start,end] by clipPadSeconds on
// each side, clamped to [0, durationSec].
func ClipWindow(start, end, durationSec float64) (float64, float64) {
	s := math.Max(0, start-clipPadSeconds)
	e := math.Min(durationSec, end+clipPadSeconds)
	if e <= s {
		e = s + 1
	}
	return s, e
}

// buildStitchedVideo implements the optional "stitched highlight video" step:
// for each of the up to five selected evidence sentences, locate its source
// video's matching transcript segment, cut a padded clip, and concatenate all
// clips into one file written back to the canonical combined-video key.
// Each source video is copied from the object store into a local temp dir
// for ffmpeg; a source whose object-store read fails is skipped rather than
// failing the build.
func (b *Builder) buildStitchedVideo(ctx context.Context, slug string, items []transcriptItem, sentenceItems []sentence.KeySentenceItem) (string, string, int, error) {
	if len(sentenceItems) == 0 {
		return "", "", 0, nil
	}

	localDir, err := os.MkdirTemp("", "combined-sources-*")
	if err != nil {
		return "", "", 0, fmt.Errorf("create local source dir: %w", err)
	}
	defer os.RemoveAll(localDir)

	ordered := make([]sentence.KeySentenceItem, len(sentenceItems))
	copy(ordered, sentenceItems)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SourceIndex < ordered[j].SourceIndex })
	if len(ordered) > maxClips {
		ordered = ordered[:maxClips]
	}

	var clips []Clip
	for _, si := range ordered {
		if si.SourceIndex < 0 || si.SourceIndex >= len(items) {
			continue
		}
		it := items[si.SourceIndex]
		segIdx, ok := findSegmentForKeyword(it, si.Keyword)
		if !ok {
			continue
		}
		seg := it.doc.Segments[segIdx]

		localPath := filepath.Join(localDir, fmt.Sprintf("src-%d.mp4", si.SourceIndex))
		data, err := b.Store.Get(ctx, it.videoObject)
		if err != nil {
			b.Log.Warn("combined: skipping clip, source video unavailable", "video_object", it.videoObject, "error", err.Error())
			continue
		}
		if err := os.WriteFile(localPath, data, 0o644); err != nil {
			return "", "", 0, fmt.Errorf("write local source %s: %w", localPath, err)
		}

		durationSec := seg.End
		for _, s := range it.doc.Segments {
			if s.End > durationSec {
				durationSec = s.End
			}
		}
		start, end := ClipWindow(seg.Start, seg.End, durationSec+clipPadSeconds)
		clips = append(clips, Clip{SourcePath: localPath, Start: start, End: end})
	}

	if len(clips) == 0 {
		return "", "", 0, nil
	}

	outPath := filepath.Join(localDir, "combined-video.mp4")
	if err := b.Stitcher.Stitch(ctx, clips, outPath); err != nil {
		return "", "", 0, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return "", "", 0, fmt.Errorf("read stitched output: %w", err)
	}
	key := naming.CombinedVideoKey(slug)
	if err := b.Store.Put(ctx, key, data, "video/mp4"); err != nil {
		return "", "", 0, fmt.Errorf("write stitched output: %w", err)
	}
	return key, objectstore.PublicURLOrKey(b.Store, key), len(clips), nil
}

func findSegmentForKeyword(it transcriptItem, kw string) (int, bool) {
	if kw == "" {
		if len(it.doc.Segments) == 0 {
			return 0, false
		}
		return 0, true
	}
	for i, seg := range it.doc.Segments {
		if keyword.Count(kw, seg.Text) > 0 {
			return i, true
		}
	}
	if len(it.doc.Segments) == 0 {
		return 0, false
	}
	return 0, true
}

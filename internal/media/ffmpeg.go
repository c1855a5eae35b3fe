package media

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// CutJob describes one chapter cut over a concatenated input.
type CutJob struct {
	// ConcatList is the path to an ffmpeg concat demuxer list file
	ConcatList string
	// Start is the chapter start offset in the concatenated audio
	Start time.Duration
	// End is the chapter end offset; zero means to end of input
	End time.Duration
	// Output is the destination file path
	Output string
	// Bitrate is the target audio bitrate (e.g. "64k"); ignored for StreamCopy
	Bitrate string
	// StreamCopy copies the source stream instead of re-encoding
	StreamCopy bool
	// Metadata is written as id3 tags (title, artist, album, track)
	Metadata map[string]string
}

// Encoder produces a single chapter file from a cut job.
type Encoder interface {
	Cut(ctx context.Context, job CutJob) error
}

// FFmpeg implements Encoder using the ffmpeg binary.
type FFmpeg struct {
	binary string
}

// NewFFmpeg creates an FFmpeg wrapper. An empty binary defaults to "ffmpeg"
// on PATH.
func NewFFmpeg(binary string) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{binary: binary}
}

// Cut runs one chapter cut.
func (f *FFmpeg) Cut(ctx context.Context, job CutJob) error {
	args, err := buildCutArgs(job)
	if err != nil {
		return err
	}

	cmd := commandContext(ctx, f.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg cut to %s failed: %w\n%s", job.Output, err, tail(output, 2048))
	}
	return nil
}

// buildCutArgs assembles the ffmpeg argument list for a cut job. The seek is
// placed after the input so it decodes up to the cut point; concat inputs do
// not seek accurately otherwise.
func buildCutArgs(job CutJob) ([]string, error) {
	if job.ConcatList == "" {
		return nil, fmt.Errorf("cut job has no input list")
	}
	if job.Output == "" {
		return nil, fmt.Errorf("cut job has no output path")
	}
	if job.End > 0 && job.End <= job.Start {
		return nil, fmt.Errorf("cut job ends (%s) before it starts (%s)", job.End, job.Start)
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", job.ConcatList,
		"-ss", formatSeconds(job.Start),
	}
	if job.End > 0 {
		args = append(args, "-to", formatSeconds(job.End))
	}

	args = append(args, "-vn")
	if job.StreamCopy {
		args = append(args, "-c:a", "copy")
	} else {
		bitrate := job.Bitrate
		if bitrate == "" {
			bitrate = "64k"
		}
		args = append(args, "-c:a", "libmp3lame", "-b:a", bitrate)
	}

	// Deterministic metadata order
	keys := make([]string, 0, len(job.Metadata))
	for k := range job.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-metadata", k+"="+job.Metadata[k])
	}

	args = append(args, "-id3v2_version", "3", job.Output)
	return args, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}

var _ Encoder = (*FFmpeg)(nil)

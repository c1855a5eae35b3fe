package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jaegermaster/overdrive-tools/internal/chapters"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/naming"
)

// OutputDirName is the subdirectory chapter files are written to.
const OutputDirName = "processed"

// BookMeta carries the tag values shared by every chapter file of a book.
type BookMeta struct {
	Title  string
	Author string
}

// Options controls how chapters are produced.
type Options struct {
	Bitrate    string
	StreamCopy bool
	// Jobs bounds how many chapter cuts run concurrently
	Jobs int
}

// Processor splits a downloaded book directory into tagged chapter files.
type Processor struct {
	prober  Prober
	encoder Encoder
	logger  *logger.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(prober Prober, encoder Encoder, log *logger.Logger) *Processor {
	return &Processor{
		prober:  prober,
		encoder: encoder,
		logger:  log,
	}
}

// Process cuts the book in dir into one file per chapter under
// dir/processed, returning the created file paths in chapter order.
func (p *Processor) Process(ctx context.Context, dir string, meta BookMeta, opts Options) ([]string, error) {
	parts, err := PartFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("no audio parts found in %s", dir)
	}

	chapterList, err := chapters.Read(filepath.Join(dir, chapters.FileName))
	if err != nil {
		return nil, fmt.Errorf("cannot process without chapter boundaries: %w", err)
	}

	total, err := p.totalDuration(ctx, parts)
	if err != nil {
		return nil, err
	}

	// Chapters past the end of the audio cannot be cut
	usable := chapterList[:0:len(chapterList)]
	for _, ch := range chapterList {
		if ch.Start >= total {
			p.logger.Warn("Skipping chapter beyond end of audio", map[string]interface{}{
				"chapter": ch.Title,
				"start":   chapters.FormatTimestamp(ch.Start),
				"total":   chapters.FormatTimestamp(total),
			})
			continue
		}
		usable = append(usable, ch)
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("no chapter starts within the audio (total %s)", chapters.FormatTimestamp(total))
	}

	outputDir := filepath.Join(dir, OutputDirName)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	concatList, err := writeConcatList(dir, parts)
	if err != nil {
		return nil, err
	}
	defer os.Remove(concatList)

	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}

	p.logger.Info("Cutting chapters", map[string]interface{}{
		"chapters": len(usable),
		"parts":    len(parts),
		"duration": chapters.FormatTimestamp(total),
		"jobs":     opts.Jobs,
	})

	outputs := make([]string, len(usable))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(opts.Jobs)

	for i, ch := range usable {
		end := total
		if i+1 < len(usable) {
			end = usable[i+1].Start
		}

		job := CutJob{
			ConcatList: concatList,
			Start:      ch.Start,
			End:        end,
			Output:     filepath.Join(outputDir, ChapterFileName(i+1, ch.Title)),
			Bitrate:    opts.Bitrate,
			StreamCopy: opts.StreamCopy,
			Metadata: map[string]string{
				"title":  ch.Title,
				"artist": meta.Author,
				"album":  meta.Title,
				"track":  fmt.Sprintf("%d/%d", i+1, len(usable)),
			},
		}
		outputs[i] = job.Output

		group.Go(func() error {
			p.logger.Debug("Cutting chapter", map[string]interface{}{
				"output": filepath.Base(job.Output),
				"start":  chapters.FormatTimestamp(job.Start),
				"end":    chapters.FormatTimestamp(job.End),
			})
			return p.encoder.Cut(groupCtx, job)
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (p *Processor) totalDuration(ctx context.Context, parts []string) (time.Duration, error) {
	var total time.Duration
	for _, part := range parts {
		d, err := p.prober.Duration(ctx, part)
		if err != nil {
			return 0, err
		}
		total += d
	}
	return total, nil
}

// PartFiles returns the downloaded audio parts in dir, sorted by name. The
// processed output directory is not scanned.
func PartFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read book directory: %w", err)
	}

	var parts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(filepath.Ext(name), ".mp3") {
			parts = append(parts, filepath.Join(dir, name))
		}
	}
	sort.Strings(parts)
	return parts, nil
}

// ChapterFileName builds the output file name for a chapter: "NN - Title.mp3".
func ChapterFileName(number int, title string) string {
	title = naming.Sanitize(title)
	if title == "" {
		title = fmt.Sprintf("Chapter %d", number)
	}
	return fmt.Sprintf("%02d - %s.mp3", number, title)
}

// writeConcatList writes an ffmpeg concat demuxer list for the parts.
func writeConcatList(dir string, parts []string) (string, error) {
	var sb strings.Builder
	for _, part := range parts {
		abs, err := filepath.Abs(part)
		if err != nil {
			return "", fmt.Errorf("failed to resolve part path: %w", err)
		}
		// Single quotes inside a quoted concat entry are closed, escaped, reopened
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		fmt.Fprintf(&sb, "file '%s'\n", escaped)
	}

	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create concat list: %w", err)
	}
	if _, err := f.WriteString(sb.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}
	return f.Name(), nil
}

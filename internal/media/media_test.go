package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaegermaster/overdrive-tools/internal/chapters"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
)

func TestBuildCutArgs(t *testing.T) {
	job := CutJob{
		ConcatList: "/tmp/concat.txt",
		Start:      90 * time.Second,
		End:        150*time.Second + 500*time.Millisecond,
		Output:     "/out/01 - Chapter 1.mp3",
		Bitrate:    "96k",
		Metadata: map[string]string{
			"title":  "Chapter 1",
			"artist": "Jane Doe",
		},
	}

	args, err := buildCutArgs(job)
	require.NoError(t, err)

	joined := fmt.Sprintf("%v", args)
	assert.Contains(t, joined, "-f concat")
	assert.Contains(t, joined, "-i /tmp/concat.txt")
	assert.Contains(t, joined, "-ss 90.000")
	assert.Contains(t, joined, "-to 150.500")
	assert.Contains(t, joined, "-c:a libmp3lame -b:a 96k")
	assert.Contains(t, joined, "-metadata artist=Jane Doe")
	assert.Contains(t, joined, "-metadata title=Chapter 1")
	assert.Equal(t, "/out/01 - Chapter 1.mp3", args[len(args)-1])

	// The seek must come after the input for accurate concat seeking
	var iIdx, ssIdx int
	for idx, arg := range args {
		switch arg {
		case "-i":
			iIdx = idx
		case "-ss":
			ssIdx = idx
		}
	}
	assert.Greater(t, ssIdx, iIdx)
}

func TestBuildCutArgsStreamCopy(t *testing.T) {
	args, err := buildCutArgs(CutJob{
		ConcatList: "/tmp/concat.txt",
		Output:     "/out/x.mp3",
		StreamCopy: true,
	})
	require.NoError(t, err)

	joined := fmt.Sprintf("%v", args)
	assert.Contains(t, joined, "-c:a copy")
	assert.NotContains(t, joined, "libmp3lame")
	assert.NotContains(t, joined, "-to", "zero end means cut to end of input")
}

func TestBuildCutArgsValidation(t *testing.T) {
	_, err := buildCutArgs(CutJob{Output: "/out/x.mp3"})
	assert.Error(t, err)

	_, err = buildCutArgs(CutJob{ConcatList: "/tmp/concat.txt"})
	assert.Error(t, err)

	_, err = buildCutArgs(CutJob{
		ConcatList: "/tmp/concat.txt",
		Output:     "/out/x.mp3",
		Start:      time.Minute,
		End:        30 * time.Second,
	})
	assert.Error(t, err)
}

func TestChapterFileName(t *testing.T) {
	assert.Equal(t, "01 - Chapter 1.mp3", ChapterFileName(1, "Chapter 1"))
	assert.Equal(t, "12 - Who What.mp3", ChapterFileName(12, "Who/What?"))
	assert.Equal(t, "03 - Chapter 3.mp3", ChapterFileName(3, "???"))
}

func TestPartFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"Part02.mp3", "Part01.mp3", "chapters.txt", "cover.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, OutputDirName), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, OutputDirName, "01 - A.mp3"), []byte("x"), 0644))

	parts, err := PartFiles(dir)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, filepath.Join(dir, "Part01.mp3"), parts[0])
	assert.Equal(t, filepath.Join(dir, "Part02.mp3"), parts[1])
}

func TestFFprobeDuration(t *testing.T) {
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", `printf '{"format":{"duration":"1800.250"}}'`)
	}
	t.Cleanup(func() { commandContext = orig })

	d, err := NewFFprobe("").Duration(context.Background(), "Part01.mp3")
	require.NoError(t, err)
	assert.Equal(t, 1800*time.Second+250*time.Millisecond, d)
}

func TestFFprobeDurationMissing(t *testing.T) {
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "sh", "-c", `printf '{"format":{}}'`)
	}
	t.Cleanup(func() { commandContext = orig })

	_, err := NewFFprobe("").Duration(context.Background(), "Part01.mp3")
	assert.Error(t, err)
}

type fakeProber struct {
	durations map[string]time.Duration
}

func (f *fakeProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	d, ok := f.durations[filepath.Base(path)]
	if !ok {
		return 0, fmt.Errorf("unknown file %s", path)
	}
	return d, nil
}

type fakeEncoder struct {
	mu   sync.Mutex
	jobs []CutJob
	err  error
}

func (f *fakeEncoder) Cut(ctx context.Context, job CutJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return f.err
}

func setupBookDir(t *testing.T, chapterLines string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"Part01.mp3", "Part02.mp3"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, chapters.FileName), []byte(chapterLines), 0644))
	return dir
}

func TestProcess(t *testing.T) {
	dir := setupBookDir(t, "00:00:00.000 Opening Credits\n00:30:00.000 Chapter 1\n00:50:00.000 Chapter 2\n")

	prober := &fakeProber{durations: map[string]time.Duration{
		"Part01.mp3": 30 * time.Minute,
		"Part02.mp3": 30 * time.Minute,
	}}
	encoder := &fakeEncoder{}

	p := NewProcessor(prober, encoder, logger.Get())
	outputs, err := p.Process(context.Background(), dir, BookMeta{Title: "The Long Way Home", Author: "Jane Doe"}, Options{Bitrate: "64k", Jobs: 2})
	require.NoError(t, err)

	require.Len(t, outputs, 3)
	assert.Equal(t, filepath.Join(dir, OutputDirName, "01 - Opening Credits.mp3"), outputs[0])
	assert.Equal(t, filepath.Join(dir, OutputDirName, "03 - Chapter 2.mp3"), outputs[2])

	require.Len(t, encoder.jobs, 3)
	byOutput := map[string]CutJob{}
	for _, job := range encoder.jobs {
		byOutput[filepath.Base(job.Output)] = job
	}

	first := byOutput["01 - Opening Credits.mp3"]
	assert.Equal(t, time.Duration(0), first.Start)
	assert.Equal(t, 30*time.Minute, first.End)
	assert.Equal(t, "Jane Doe", first.Metadata["artist"])
	assert.Equal(t, "The Long Way Home", first.Metadata["album"])
	assert.Equal(t, "1/3", first.Metadata["track"])

	last := byOutput["03 - Chapter 2.mp3"]
	assert.Equal(t, 50*time.Minute, last.Start)
	assert.Equal(t, 60*time.Minute, last.End, "last chapter runs to end of audio")

	// Concat list is cleaned up afterwards
	leftovers, err := filepath.Glob(filepath.Join(dir, "concat-*.txt"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestProcessSkipsChaptersBeyondAudio(t *testing.T) {
	dir := setupBookDir(t, "00:00:00.000 Chapter 1\n02:00:00.000 Phantom Chapter\n")

	prober := &fakeProber{durations: map[string]time.Duration{
		"Part01.mp3": 30 * time.Minute,
		"Part02.mp3": 30 * time.Minute,
	}}
	encoder := &fakeEncoder{}

	p := NewProcessor(prober, encoder, logger.Get())
	outputs, err := p.Process(context.Background(), dir, BookMeta{}, Options{})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Len(t, encoder.jobs, 1)
	assert.Equal(t, 60*time.Minute, encoder.jobs[0].End)
}

func TestProcessNoParts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, chapters.FileName), []byte("00:00:00.000 A\n"), 0644))

	p := NewProcessor(&fakeProber{}, &fakeEncoder{}, logger.Get())
	_, err := p.Process(context.Background(), dir, BookMeta{}, Options{})
	assert.Error(t, err)
}

func TestProcessMissingChapters(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Part01.mp3"), []byte("audio"), 0644))

	p := NewProcessor(&fakeProber{durations: map[string]time.Duration{"Part01.mp3": time.Hour}}, &fakeEncoder{}, logger.Get())
	_, err := p.Process(context.Background(), dir, BookMeta{}, Options{})
	assert.Error(t, err)
}

func TestProcessEncoderError(t *testing.T) {
	dir := setupBookDir(t, "00:00:00.000 Chapter 1\n")

	prober := &fakeProber{durations: map[string]time.Duration{
		"Part01.mp3": 30 * time.Minute,
		"Part02.mp3": 30 * time.Minute,
	}}
	encoder := &fakeEncoder{err: fmt.Errorf("encode blew up")}

	p := NewProcessor(prober, encoder, logger.Get())
	_, err := p.Process(context.Background(), dir, BookMeta{}, Options{})
	assert.ErrorContains(t, err, "encode blew up")
}

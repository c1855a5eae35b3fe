package main

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/urfave/cli/v2"

	"github.com/jaegermaster/overdrive-tools/internal/chapters"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/media"
	"github.com/jaegermaster/overdrive-tools/internal/naming"
	"github.com/jaegermaster/overdrive-tools/internal/overdrive"
)

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "Cut the downloaded parts into per-chapter MP3 files",
		ArgsUsage: "BOOK_DIR",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "bitrate",
				Usage: "Target MP3 bitrate, e.g. 64k",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Usage:   "Number of chapters to encode in parallel",
			},
			&cli.BoolFlag{
				Name:  "copy",
				Usage: "Copy the audio stream instead of re-encoding (fast, less accurate cuts)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Override the book title used for tags",
			},
			&cli.StringFlag{
				Name:  "author",
				Usage: "Override the author used for tags",
			},
		},
		Action: runProcess,
	}
}

func runProcess(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected a book directory")
	}
	dir := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Get()

	author, title := c.String("author"), c.String("title")
	if author == "" || title == "" {
		base := filepath.Base(filepath.Clean(dir))
		dirAuthor, dirTitle, ok := naming.SplitDirectory(base)
		if !ok && (author == "" || title == "") {
			return fmt.Errorf("directory name %q does not look like \"Author - Title\", pass --author and --title", base)
		}
		if author == "" {
			author = dirAuthor
		}
		if title == "" {
			title = dirTitle
		}
	}

	opts := media.Options{
		Bitrate:    cfg.Process.Bitrate,
		StreamCopy: cfg.Process.StreamCopy,
		Jobs:       cfg.Process.Jobs,
	}
	if c.String("bitrate") != "" {
		opts.Bitrate = c.String("bitrate")
	}
	if c.Int("jobs") > 0 {
		opts.Jobs = c.Int("jobs")
	}
	if c.Bool("copy") {
		opts.StreamCopy = true
	}

	if cfg.App.DryRun {
		parts, err := media.PartFiles(dir)
		if err != nil {
			return err
		}
		chs, err := chapters.Read(filepath.Join(dir, chapters.FileName))
		if err != nil {
			return err
		}
		log.Info("Dry run: not encoding", map[string]interface{}{
			"parts":    len(parts),
			"chapters": len(chs),
			"output":   filepath.Join(dir, media.OutputDirName),
		})
		return nil
	}

	lock := flock.New(filepath.Join(dir, overdrive.LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock book directory: %w", err)
	}
	if !locked {
		return fmt.Errorf("another run is already working on %s", dir)
	}
	defer lock.Unlock()

	p := media.NewProcessor(
		media.NewFFprobe(cfg.Process.FFprobePath),
		media.NewFFmpeg(cfg.Process.FFmpegPath),
		log,
	)

	outputs, err := p.Process(c.Context, dir, media.BookMeta{Title: title, Author: author}, opts)
	if err != nil {
		return err
	}

	log.Info("Processing finished", map[string]interface{}{
		"title":    title,
		"chapters": len(outputs),
		"output":   filepath.Join(dir, media.OutputDirName),
	})
	return nil
}

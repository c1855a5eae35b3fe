package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/odm"
	"github.com/jaegermaster/overdrive-tools/internal/overdrive"
)

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:      "download",
		Usage:     "Download all parts of a borrowed audiobook",
		ArgsUsage: "BOOK.odm [BOOK.odm ...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "Disable per-part progress bars",
			},
		},
		Action: runDownload,
	}
}

func runDownload(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("expected at least one .odm file")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Get()

	var store overdrive.Store
	if db := openDatabase(cfg, log); db != nil {
		defer db.Close()
		store = db
	}

	client := overdrive.NewClient(cfg.Network.UserAgent, cfg.Network.Timeout, log)
	svc := overdrive.NewService(client, store, cfg, log)

	if !c.Bool("no-progress") {
		svc.SetProgress(func(part odm.Part) io.Writer {
			return progressbar.DefaultBytes(part.FileSize, part.LocalName())
		})
	}

	for _, odmPath := range c.Args().Slice() {
		result, err := svc.Download(c.Context, odmPath)
		if err != nil {
			return fmt.Errorf("%s: %w", odmPath, err)
		}
		log.Info("Download finished", map[string]interface{}{
			"title":      result.Title,
			"author":     result.Author,
			"directory":  result.Directory,
			"downloaded": result.Downloaded,
			"skipped":    result.Skipped,
		})
	}
	return nil
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/jaegermaster/overdrive-tools/internal/api/audible"
	"github.com/jaegermaster/overdrive-tools/internal/api/audnex"
	"github.com/jaegermaster/overdrive-tools/internal/chapters"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/lookup"
	"github.com/jaegermaster/overdrive-tools/internal/naming"
	"github.com/jaegermaster/overdrive-tools/internal/odm"
)

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Fetch chapter timestamps from the Audible catalog and write chapters.txt",
		ArgsUsage: "BOOK_DIR | BOOK.odm",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "region",
				Usage: fmt.Sprintf("Audible catalog region (%s)", strings.Join(audible.Regions(), ", ")),
			},
			&cli.StringFlag{
				Name:  "asin",
				Usage: "Skip the catalog search and use this ASIN directly",
			},
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Pick the best catalog match without asking",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Directory to write chapters.txt into (default: the book directory)",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Override the title used for the catalog search",
			},
			&cli.StringFlag{
				Name:  "author",
				Usage: "Override the author used for the catalog search",
			},
		},
		Action: runExtract,
	}
}

func runExtract(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected a book directory or a .odm file")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logger.Get()

	author, title, bookDir, err := bookIdentity(c.Args().First())
	if err != nil && (c.String("title") == "" || c.String("author") == "") {
		return err
	}
	if c.String("title") != "" {
		title = c.String("title")
	}
	if c.String("author") != "" {
		author = c.String("author")
	}
	if bookDir == "" {
		if info, statErr := os.Stat(c.Args().First()); statErr == nil && info.IsDir() {
			bookDir = c.Args().First()
		} else {
			bookDir = filepath.Dir(c.Args().First())
		}
	}

	outDir := bookDir
	if c.String("output") != "" {
		outDir = c.String("output")
	}

	region := cfg.Audible.Region
	if c.String("region") != "" {
		region = c.String("region")
	}
	if !audible.ValidRegion(region) {
		return fmt.Errorf("unknown region %q, valid regions: %s", region, strings.Join(audible.Regions(), ", "))
	}

	svc := lookup.NewService(
		audible.NewClient(cfg.Network.Timeout, log),
		audnex.NewClient(cfg.Network.Timeout, log),
		cfg.Network.RateLimit,
		cfg.Audible.CacheTTL,
		log,
	)

	asin := c.String("asin")
	if asin == "" {
		candidates, err := svc.Search(c.Context, author, title, region)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return fmt.Errorf("no catalog matches for %q by %q in region %s", title, author, region)
		}

		picked := candidates[0]
		if !c.Bool("yes") && len(candidates) > 1 {
			picked, err = pickCandidate(candidates)
			if err != nil {
				return err
			}
		}
		asin = picked.ASIN
		log.Info("Selected catalog match", map[string]interface{}{
			"asin":  asin,
			"title": picked.Title,
		})
	}

	chs, accurate, err := svc.Chapters(c.Context, asin, region)
	if err != nil {
		return err
	}
	if !accurate {
		log.Warn("Chapter timestamps are not verified and may be off", map[string]interface{}{
			"asin": asin,
		})
	}

	outPath := filepath.Join(outDir, chapters.FileName)
	if cfg.App.DryRun {
		log.Info("Dry run: not writing chapter file", map[string]interface{}{
			"path":     outPath,
			"chapters": len(chs),
		})
		return nil
	}

	if err := chapters.Write(outPath, chs); err != nil {
		return err
	}
	log.Info("Chapter file written", map[string]interface{}{
		"path":     outPath,
		"chapters": len(chs),
	})
	return nil
}

// bookIdentity derives the author, title and book directory from either a
// downloaded book directory or a .odm descriptor.
func bookIdentity(arg string) (author, title, dir string, err error) {
	info, statErr := os.Stat(arg)
	if statErr != nil {
		return "", "", "", fmt.Errorf("cannot access %s: %w", arg, statErr)
	}

	if info.IsDir() {
		base := filepath.Base(filepath.Clean(arg))
		author, title, ok := naming.SplitDirectory(base)
		if !ok {
			return "", "", "", fmt.Errorf("directory name %q does not look like \"Author - Title\"", base)
		}
		return author, title, arg, nil
	}

	media, err := odm.ParseFile(arg)
	if err != nil {
		return "", "", "", err
	}
	if media.Metadata != nil && media.Metadata.Title != "" && media.Metadata.Author != "" {
		return media.Metadata.Author, media.Metadata.Title, filepath.Dir(arg), nil
	}
	meta, err := odm.ReadSidecar(odm.SidecarPath(arg))
	if err != nil {
		return "", "", "", fmt.Errorf("descriptor has no usable metadata and sidecar failed: %w", err)
	}
	return meta.Author, meta.Title, filepath.Dir(arg), nil
}

// pickCandidate renders the matches as a table and asks the user to choose.
func pickCandidate(candidates []lookup.Candidate) (lookup.Candidate, error) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ASIN", "Title", "Authors", "Narrators", "Series", "Released"})
	for i, cand := range candidates {
		title := cand.Title
		if cand.Subtitle != "" {
			title += ": " + cand.Subtitle
		}
		tw.AppendRow(table.Row{
			i + 1,
			cand.ASIN,
			title,
			strings.Join(cand.Authors, ", "),
			strings.Join(cand.Narrators, ", "),
			cand.SeriesLabel(),
			cand.ReleaseDate,
		})
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()

	fmt.Printf("Select a match [1-%d], 0 to abort: ", len(candidates))
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return lookup.Candidate{}, fmt.Errorf("failed to read selection: %w", err)
	}

	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 0 || choice > len(candidates) {
		return lookup.Candidate{}, fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	if choice == 0 {
		return lookup.Candidate{}, fmt.Errorf("aborted")
	}
	return candidates[choice-1], nil
}

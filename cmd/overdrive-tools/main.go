// overdrive-tools works with audiobooks borrowed through OverDrive: it
// downloads the parts named in a .odm descriptor, fetches chapter timestamps
// from the Audible catalog, re-encodes the audio into per-chapter files and
// returns the loan early.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/jaegermaster/overdrive-tools/internal/config"
	"github.com/jaegermaster/overdrive-tools/internal/database"
	"github.com/jaegermaster/overdrive-tools/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "overdrive-tools",
		Usage:   "Download, chapterize, re-encode and return OverDrive audiobook loans",
		Version: fmt.Sprintf("%s (%s) %s", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				Value:   "config.yaml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (json or console)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Enable dry run mode (no downloads, returns or writes)",
			},
		},
		Commands: []*cli.Command{
			downloadCommand(),
			extractCommand(),
			processCommand(),
			returnCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Get().Error("Error running application", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

// loadConfig loads the configuration, applies global flag overrides and
// reconfigures the logger accordingly.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
	if c.Bool("dry-run") {
		cfg.App.DryRun = true
	}

	logger.Setup(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     logger.ParseLogFormat(cfg.Logging.Format),
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	})

	return cfg, nil
}

// openDatabase opens the loan registry. A broken registry never blocks a
// download or a return, so failures degrade to running without one.
func openDatabase(cfg *config.Config, log *logger.Logger) *database.Database {
	if cfg.Paths.DatabaseFile == "" {
		return nil
	}
	db, err := database.New(cfg.Paths.DatabaseFile, log)
	if err != nil {
		log.Warn("Loan registry unavailable, continuing without it", map[string]interface{}{
			"path":  cfg.Paths.DatabaseFile,
			"error": err.Error(),
		})
		return nil
	}
	return db
}

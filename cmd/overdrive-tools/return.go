package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jaegermaster/overdrive-tools/internal/logger"
	"github.com/jaegermaster/overdrive-tools/internal/overdrive"
)

func returnCommand() *cli.Command {
	return &cli.Command{
		Name:      "return",
		Usage:     "Return the loan early so the copy frees up",
		ArgsUsage: "BOOK.odm",
		Action:    runReturn,
	}
}

func runReturn(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected a .odm file")
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

	media, err := svc.Return(c.Context, c.Args().First())
	if err != nil {
		return err
	}

	if !cfg.App.DryRun {
		log.Info("Loan returned", map[string]interface{}{
			"media_id": media.ID,
		})
	}
	return nil
}

/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"feedreader/config"
	"feedreader/db"
	"feedreader/feeds"
	"feedreader/fetcher"
	"feedreader/loader"
	"feedreader/models"
	"feedreader/view"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func loadCmd() *cli.Command {
	return &cli.Command{
		Name:      "load",
		Usage:     "Load a single feed and print it",
		ArgsUsage: "<index|name>",
		Description: `Loads one feed from the registry the same way the reader page does
		and prints its entries to stdout.

		The feed can be given by its position in the registry, starting at 0, or
		by its name. Logs are written to stderr.`,
		Flags: []cli.Flag{
			configFlag(),
			databaseFlag(),
			&cli.BoolFlag{
				Name:  "html",
				Usage: "Print the rendered feed region instead of a plain listing",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the loaded feed as JSON",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Do not read or write the entry cache",
			},
		},
		Action: func(ctx *cli.Context) error {
			// Keep stdout for the feed itself
			log.SetOutput(os.Stderr)

			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			registry := feeds.FromConfig(cfg)
			if err := feeds.Validate(registry); err != nil {
				return fmt.Errorf("invalid feed registry: %w", err)
			}

			index, err := resolveIndex(registry, ctx.Args().First())
			if err != nil {
				return err
			}

			loaderConfig := loader.LoaderConfig{
				Timeout:    cfg.Loader.Timeout.Duration,
				MaxEntries: cfg.Loader.MaxEntries,
			}
			if !ctx.Bool("no-cache") {
				database := databasePath(ctx, cfg)
				if err := db.Migrate(database); err != nil {
					return fmt.Errorf("failed to migrate database: %w", err)
				}
				store, err := db.Open(database)
				if err != nil {
					return err
				}
				defer store.Close()
				loaderConfig.Cache = store
			}

			feedLoader := loader.New(registry, fetcher.New(fetcher.FetcherConfig{
				UserAgent:  cfg.Loader.UserAgent,
				MaxEntries: cfg.Loader.MaxEntries,
				Retries:    cfg.Loader.Retries,
			}), view.NewFeedView(), loaderConfig)
			feedLoader.Start(ctx.Context)
			defer feedLoader.Shutdown()

			res, err := feedLoader.LoadAndWait(ctx.Context, index)
			if err != nil {
				return err
			}

			out := ctx.App.Writer
			switch {
			case ctx.Bool("html"):
				_, err = fmt.Fprintln(out, res.HTML)
			case ctx.Bool("json"):
				err = json.NewEncoder(out).Encode(res.Content)
			default:
				err = printEntries(out, res.Content)
			}
			return err
		},
	}
}

// resolveIndex accepts either a registry position or a feed name
func resolveIndex(registry *feeds.Registry, arg string) (int, error) {
	if arg == "" {
		return 0, errors.New("please specify a feed index or name")
	}
	if index, err := strconv.Atoi(arg); err == nil {
		return index, nil
	}
	if index := registry.IndexOf(arg); index >= 0 {
		return index, nil
	}
	return 0, fmt.Errorf("no feed named %q", arg)
}

func printEntries(w io.Writer, content models.FeedContent) error {
	header := content.Name
	if content.Stale {
		header += " (cached)"
	}
	if _, err := fmt.Fprintf(w, "%s\n%s\n\n", header, content.URL); err != nil {
		return err
	}

	for i, entry := range content.Entries {
		date := ""
		if !entry.Published.IsZero() {
			date = entry.Published.Format("2006-01-02") + " "
		}
		if _, err := fmt.Fprintf(w, "%d. %s%s\n   %s\n", i+1, date, entry.Title, entry.Link); err != nil {
			return err
		}
	}
	return nil
}

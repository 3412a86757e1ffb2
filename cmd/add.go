/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"strings"

	"feedreader/config"
	"feedreader/feeds"
	"feedreader/fetcher"

	"github.com/cqroot/prompt"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func addCmd() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a feed to the registry",
		Description: `Appends a feed to the end of the registry in the configuration file.

		The feed is fetched first to make sure it can be parsed. Its title is
		suggested as the name when no --name is given. Missing values are
		prompted for.`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "url",
				Usage: "URL of the RSS or Atom feed",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Name shown in the menu",
			},
			&cli.BoolFlag{
				Name:  "no-check",
				Usage: "Do not fetch the feed before adding it",
			},
		},
		Action: func(ctx *cli.Context) error {
			path := ctx.String("config")
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			url := ctx.String("url")
			if url == "" {
				url, err = prompt.New().Ask("Feed URL:").Input("https://example.com/feed.xml")
				if err != nil {
					return err
				}
			}

			title := ""
			if !ctx.Bool("no-check") {
				f := fetcher.New(fetcher.FetcherConfig{
					UserAgent: cfg.Loader.UserAgent,
					Retries:   cfg.Loader.Retries,
				})
				title, err = f.Title(ctx.Context, url)
				if err != nil {
					return fmt.Errorf("could not fetch feed: %w", err)
				}
			}

			name := ctx.String("name")
			if name == "" {
				name, err = prompt.New().Ask("Name:").Input(title)
				if err != nil {
					return err
				}
			}

			if err := appendFeed(cfg, name, url); err != nil {
				return err
			}
			if err := config.SaveConfig(path, cfg); err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"name":  name,
				"url":   url,
				"index": len(cfg.Feeds) - 1,
			}).Info("Added feed")

			return nil
		},
	}
}

// appendFeed adds a feed at the end of the registry. The configuration is
// left untouched when the result would not be a valid registry.
func appendFeed(cfg *config.TomlConfig, name string, url string) error {
	name, url = strings.TrimSpace(name), strings.TrimSpace(url)

	if lo.ContainsBy(cfg.Feeds, func(f config.TomlFeed) bool { return f.URL == url }) {
		return fmt.Errorf("feed %s is already in the registry", url)
	}

	candidate := append(append([]config.TomlFeed(nil), cfg.Feeds...), config.TomlFeed{Name: name, URL: url})
	if err := feeds.Validate(feeds.FromConfig(&config.TomlConfig{Feeds: candidate})); err != nil {
		return err
	}

	cfg.Feeds = candidate
	return nil
}

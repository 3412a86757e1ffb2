/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"feedreader/config"
	"feedreader/feeds"
	"feedreader/fetcher"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func validateCmd() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate the feed registry",
		Description: `Checks that the feed registry in the configuration file is usable.

		Every feed needs a url and a name. All problems are listed, not just the
		first one. With --fetch each feed is also downloaded to check that it can
		be parsed.`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "fetch",
				Usage: "Also fetch every feed to check that it is reachable",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			registry := feeds.FromConfig(cfg)
			problems := violations(feeds.Validate(registry))

			if ctx.Bool("fetch") && len(problems) == 0 {
				f := fetcher.New(fetcher.FetcherConfig{
					UserAgent: cfg.Loader.UserAgent,
					Retries:   cfg.Loader.Retries,
				})
				for i, feed := range registry.All() {
					title, err := f.Title(ctx.Context, feed.URL)
					if err != nil {
						problems = append(problems, fetchProblem(i, err))
						continue
					}
					log.WithFields(log.Fields{
						"index": i,
						"name":  feed.Name,
						"title": title,
					}).Info("Fetched feed")
				}
			}

			if len(problems) > 0 {
				printProblems(ctx.App.Writer, problems)
				return cli.Exit(fmt.Sprintf("found %d problems in %s", len(problems), ctx.String("config")), 1)
			}

			fmt.Fprintf(ctx.App.Writer, "%d feeds OK\n", registry.Len())
			return nil
		},
	}
}

// fetchProblem tells feeds that are gone apart from feeds that are failing
func fetchProblem(index int, err error) error {
	switch {
	case fetcher.IsStatus(err, http.StatusNotFound), fetcher.IsStatus(err, http.StatusGone):
		return fmt.Errorf("feed %d: feed no longer exists: %w", index, err)
	case fetcher.IsStatus(err, http.StatusUnauthorized), fetcher.IsStatus(err, http.StatusForbidden):
		return fmt.Errorf("feed %d: access denied: %w", index, err)
	default:
		return fmt.Errorf("feed %d: %w", index, err)
	}
}

// violations flattens a joined error into its parts
func violations(err error) []error {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}

func printProblems(w io.Writer, problems []error) {
	for _, problem := range problems {
		fmt.Fprintf(w, "- %s\n", problem)
	}
}

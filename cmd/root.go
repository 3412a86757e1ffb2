/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"feedreader/config"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feedreader",
		Usage: "A small single-page RSS feed reader",
		Description: `A feed reader that shows a configured list of RSS and Atom feeds.

		Feeds are listed in a TOML configuration file. The reader serves a single
		page with a navigation menu of those feeds; selecting a feed loads it and
		replaces the content of the page. Fetched entries are cached in an SQLite
		database so a feed can still be shown when its source is down.

		Flags can generally be set via environment variables, e.g.:

		--config => FEEDREADER_CONFIG=config/feeds.toml
		--port => FEEDREADER_PORT=8080
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"FEEDREADER_LOG_LEVEL"},
			},
		},
		Before: func(ctx *cli.Context) error {
			level, err := log.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			serveCmd(),
			loadCmd(),
			validateCmd(),
			addCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return cli.ShowAppHelp(ctx)
		},
	}
}

// Execute runs the CLI with the process arguments
func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "config/feeds.toml",
		Usage:   "Path to feeds configuration file",
		EnvVars: []string{"FEEDREADER_CONFIG"},
	}
}

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Value:   config.DefaultDatabase,
		Usage:   "SQLite database file location",
		EnvVars: []string{"FEEDREADER_DATABASE"},
	}
}

// databasePath prefers an explicit flag over the configuration file
func databasePath(ctx *cli.Context, cfg *config.TomlConfig) string {
	if ctx.IsSet("database") {
		return ctx.String("database")
	}
	return cfg.Database.Path
}

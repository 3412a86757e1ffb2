/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"feedreader/config"
	"feedreader/db"

	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing cached entries that are old.

		Remove entries fetched longer ago than the maximum age from the database.
		This keeps the cache small while still covering feeds that are down.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.DurationFlag{
				Name:    "max-age",
				Value:   config.DefaultMaxEntryAge,
				Usage:   "Remove entries fetched longer ago than this",
				EnvVars: []string{"FEEDREADER_MAX_AGE"},
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)
			removed, err := db.Tidy(database, ctx.Duration("max-age"))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d entries\n", removed)
			return nil
		},
	}
}

/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"feedreader/config"
	"feedreader/db"
	"feedreader/feeds"
	"feedreader/fetcher"
	"feedreader/loader"
	"feedreader/server"
	"feedreader/view"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feed reader",
		Description: `Starts the feed reader HTTP server.

		Validates the feed registry, migrates the entry cache and serves the
		reader page on the specified or default port. The first feed is loaded
		on startup.`,
		Flags: []cli.Flag{
			configFlag(),
			databaseFlag(),
			&cli.StringFlag{
				Name:    "hostname",
				Usage:   "Address to listen on, empty for all interfaces. Overrides the configuration file",
				EnvVars: []string{"FEEDREADER_HOSTNAME"},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on, overrides the configuration file",
				EnvVars: []string{"FEEDREADER_PORT"},
			},
			&cli.StringFlag{
				Name:    "allow-origins",
				Value:   "*",
				Usage:   "Comma separated origins allowed to call the API",
				EnvVars: []string{"FEEDREADER_ALLOW_ORIGINS"},
			},
			&cli.DurationFlag{
				Name:    "tidy-interval",
				Value:   time.Hour,
				Usage:   "How often old cached entries are removed, 0 disables periodic tidying",
				EnvVars: []string{"FEEDREADER_TIDY_INTERVAL"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := config.LoadConfig(ctx.String("config"))
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			registry := feeds.FromConfig(cfg)
			if err := feeds.Validate(registry); err != nil {
				return fmt.Errorf("invalid feed registry: %w", err)
			}

			hostname := cfg.Server.Hostname
			if ctx.IsSet("hostname") {
				hostname = ctx.String("hostname")
			}
			port := cfg.Server.Port
			if ctx.IsSet("port") {
				port = ctx.Int("port")
			}

			database := databasePath(ctx, cfg)
			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
			store, err := db.Open(database)
			if err != nil {
				return err
			}
			defer store.Close()

			signalCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			broadcaster := server.NewBroadcaster()
			feedView := view.NewFeedView()
			feedLoader := loader.New(registry, fetcher.New(fetcher.FetcherConfig{
				UserAgent:  cfg.Loader.UserAgent,
				MaxEntries: cfg.Loader.MaxEntries,
				Retries:    cfg.Loader.Retries,
			}), feedView, loader.LoaderConfig{
				Timeout:    cfg.Loader.Timeout.Duration,
				MaxEntries: cfg.Loader.MaxEntries,
				Cache:      store,
				Notifier:   broadcaster,
			})
			feedLoader.Start(signalCtx)

			// Show the first feed as soon as the page is opened
			feedLoader.LoadFeed(signalCtx, 0, func(res loader.Result) {
				if res.Err != nil {
					log.WithError(res.Err).Warn("Initial feed load failed")
				}
			})

			go tidyPeriodically(signalCtx, store, ctx.Duration("tidy-interval"), cfg.Database.MaxAge.Duration)

			app := server.Server(&server.ServerConfig{
				AllowOrigins: ctx.String("allow-origins"),
				Registry:     registry,
				Loader:       feedLoader,
				FeedView:     feedView,
				Menu:         view.NewMenu(),
				Broadcaster:  broadcaster,
			})

			go func() {
				<-signalCtx.Done()
				log.Info("Gracefully shutting down...")
				if err := app.ShutdownWithTimeout(60 * time.Second); err != nil {
					log.WithError(err).Error("Error shutting down server")
				}
			}()

			log.WithFields(log.Fields{
				"hostname": hostname,
				"port":     port,
				"feeds":    registry.Len(),
				"database": database,
			}).Info("Starting server")

			err = app.Listen(listenAddress(hostname, port))

			feedLoader.Shutdown()
			broadcaster.Shutdown()
			log.Info("Done!")

			return err
		},
	}
}

func listenAddress(hostname string, port int) string {
	return net.JoinHostPort(hostname, strconv.Itoa(port))
}

func tidyPeriodically(ctx context.Context, store *db.Store, interval time.Duration, maxAge time.Duration) {
	if interval <= 0 {
		log.Info("Periodic tidying disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.Tidy(ctx, maxAge)
			if err != nil {
				log.WithError(err).Error("Error tidying database")
				continue
			}
			log.WithFields(log.Fields{
				"removed": removed,
			}).Info("Tidied database")
		}
	}
}

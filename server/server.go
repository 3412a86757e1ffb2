package server

import (
	"bufio"
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"feedreader/feeds"
	"feedreader/loader"
	"feedreader/models"
	"feedreader/view"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

//go:embed static/*
var static embed.FS

type ServerConfig struct {

	// Origins allowed to call the API from a browser
	AllowOrigins string

	// The ordered feed registry shown in the menu
	Registry *feeds.Registry

	// Loads feeds into FeedView
	Loader *loader.Loader

	// Current content of the feed display region
	FeedView *view.FeedView

	// Menu visibility state
	Menu *view.Menu

	// Broadcast channels to pass events to SSE clients
	Broadcaster *Broadcaster

	// Interval between SSE keep-alive pings
	PingInterval time.Duration
}

type menuResponse struct {
	Hidden bool `json:"hidden"`
}

type loadResponse struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Stale   bool   `json:"stale"`
	HTML    string `json:"html"`
}

// Returns a fiber.App instance to be used as the HTTP server for the reader
func Server(config *ServerConfig) *fiber.App {

	bc := config.Broadcaster
	if config.AllowOrigins == "" {
		config.AllowOrigins = "*"
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 5 * time.Second
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: config.AllowOrigins,
		AllowHeaders: "Cache-Control",
	}))

	// The registry never changes while the process runs, so its listing is cached
	app.Use(cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodGet || c.Path() != "/api/feeds"
		},
		Expiration: time.Hour,
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		var buf bytes.Buffer
		if err := view.RenderPage(&buf, view.NewPageData(config.Menu, config.Registry, config.FeedView)); err != nil {
			log.WithFields(log.Fields{
				"error": err,
			}).Error("Error rendering page")
			return c.Status(fiber.StatusInternalServerError).SendString("Error rendering page")
		}
		c.Type("html")
		return c.Send(buf.Bytes())
	})

	app.Get("/feed", func(c *fiber.Ctx) error {
		c.Type("html")
		return c.SendString(config.FeedView.HTML())
	})

	app.Get("/api/feeds", func(c *fiber.Ctx) error {
		return c.JSON(config.Registry.All())
	})

	app.Post("/api/feeds/:index/load", func(c *fiber.Ctx) error {
		index, err := strconv.Atoi(c.Params("index"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("Invalid feed index")
		}

		res, err := config.Loader.LoadAndWait(c.UserContext(), index)
		switch {
		case errors.Is(err, feeds.ErrIndexOutOfRange):
			return c.Status(fiber.StatusNotFound).SendString("Unknown feed")
		case errors.Is(err, loader.ErrNotRunning):
			return c.Status(fiber.StatusServiceUnavailable).SendString("Feed loader is not running")
		case err != nil:
			log.WithFields(log.Fields{
				"index": index,
				"error": err,
			}).Error("Error loading feed")
			return c.Status(fiber.StatusBadGateway).SendString("Error loading feed")
		}

		return c.JSON(loadResponse{
			Index:   res.Index,
			Name:    res.Content.Name,
			Entries: len(res.Content.Entries),
			Stale:   res.Content.Stale,
			HTML:    res.HTML,
		})
	})

	app.Get("/api/menu", func(c *fiber.Ctx) error {
		return c.JSON(menuResponse{Hidden: config.Menu.Hidden()})
	})

	app.Post("/api/menu/toggle", func(c *fiber.Ctx) error {
		hidden := config.Menu.Toggle()
		bc.NotifyMenu(models.MenuEvent{Hidden: hidden})

		log.WithFields(log.Fields{
			"hidden": hidden,
		}).Info("Toggled menu")

		return c.JSON(menuResponse{Hidden: hidden})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Delete("/feed/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(fiber.StatusOK).SendString("OK")
	})

	app.Get("/feed/sse", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		loadChannel := make(chan models.LoadEvent, 10)
		menuChannel := make(chan models.MenuEvent, 10)
		aliveChan := time.NewTicker(config.PingInterval)

		bc.AddClient(key, loadChannel, menuChannel)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer aliveChan.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				bc.RemoveClient(key)
			}()

			fmt.Fprintf(w, "event: init\ndata: %s\n\n", key)
			if err := w.Flush(); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}

			for {
				select {
				case <-aliveChan.C:
					if err := writeEvent(w, "ping", ""); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}

				case event, ok := <-loadChannel:
					if !ok {
						log.Warnf("Load channel closed for client %s", key)
						return
					}
					if err := writeJSONEvent(w, "load", event); err != nil {
						log.Warnf("Failed to send load event to client %s: %v", key, err)
						return
					}

				case event, ok := <-menuChannel:
					if !ok {
						log.Warnf("Menu channel closed for client %s", key)
						return
					}
					if err := writeJSONEvent(w, "menu", event); err != nil {
						log.Warnf("Failed to send menu event to client %s: %v", key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	app.Use("/static", filesystem.New(filesystem.Config{
		Browse:     false,
		Root:       http.FS(static),
		PathPrefix: "/static",
	}))

	return app
}

func writeJSONEvent(w *bufio.Writer, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeEvent(w, name, string(data))
}

func writeEvent(w *bufio.Writer, name string, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}

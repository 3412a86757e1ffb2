// Package loader loads feeds from the registry into the feed view.
//
// A load is asynchronous: Load returns a channel that receives exactly one
// Result once the feed has been fetched and the view replaced. Callers must
// wait for that result before looking at the view. Loads are processed one
// at a time in submission order.
package loader

import (
	"context"
	"errors"
	"sync"
	"time"

	"feedreader/feeds"
	"feedreader/models"
	"feedreader/view"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var ErrNotRunning = errors.New("feed loader is not running")

var loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedreader_loads_total",
	Help: "The total number of feed loads by outcome",
}, []string{"status"})

const (
	defaultTimeout   = 30 * time.Second
	defaultQueueSize = 16
	cacheTimeout     = 5 * time.Second
)

// Fetcher downloads the entries of a feed
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.Entry, error)
}

// Cache keeps the last successfully fetched entries of each feed
type Cache interface {
	SaveEntries(ctx context.Context, feedURL string, entries []models.Entry) error
	GetEntries(ctx context.Context, feedURL string, limit int) ([]models.Entry, error)
}

// Notifier is told about every completed load
type Notifier interface {
	NotifyLoad(event models.LoadEvent)
}

// LoaderConfig holds the optional parts of a Loader
type LoaderConfig struct {
	// Timeout bounds a single load, fetch included
	Timeout    time.Duration
	QueueSize  int
	MaxEntries int
	Cache      Cache
	Notifier   Notifier
}

// Result is delivered once per Load
type Result struct {
	Index   int
	Content models.FeedContent
	HTML    string
	Err     error
}

type Loader struct {
	registry *feeds.Registry
	fetcher  Fetcher
	view     *view.FeedView
	config   LoaderConfig

	jobs    chan *job
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type job struct {
	ctx    context.Context
	index  int
	result chan Result
}

func (j *job) complete(res Result) {
	j.result <- res
	close(j.result)
}

func New(registry *feeds.Registry, fetcher Fetcher, feedView *view.FeedView, config LoaderConfig) *Loader {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}

	return &Loader{
		registry: registry,
		fetcher:  fetcher,
		view:     feedView,
		config:   config,
		jobs:     make(chan *job, config.QueueSize),
	}
}

// Load queues a load of the feed at index and returns the channel its
// result is delivered on
func (l *Loader) Load(ctx context.Context, index int) <-chan Result {
	j := &job{ctx: ctx, index: index, result: make(chan Result, 1)}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.running {
		j.complete(Result{Index: index, Err: ErrNotRunning})
		return j.result
	}

	select {
	case l.jobs <- j:
	case <-ctx.Done():
		j.complete(Result{Index: index, Err: ctx.Err()})
	case <-l.ctx.Done():
		j.complete(Result{Index: index, Err: ErrNotRunning})
	}

	return j.result
}

// LoadAndWait loads the feed at index and blocks until it completes
func (l *Loader) LoadAndWait(ctx context.Context, index int) (Result, error) {
	select {
	case res := <-l.Load(ctx, index):
		return res, res.Err
	case <-ctx.Done():
		return Result{Index: index}, ctx.Err()
	}
}

// LoadFeed loads the feed at index and calls onComplete with the result
// from another goroutine
func (l *Loader) LoadFeed(ctx context.Context, index int, onComplete func(Result)) {
	results := l.Load(ctx, index)
	go func() {
		onComplete(<-results)
	}()
}

func (l *Loader) load(ctx context.Context, index int) Result {
	feed, err := l.registry.Get(index)
	if err != nil {
		return Result{Index: index, Err: err}
	}

	logger := log.WithFields(log.Fields{
		"index": index,
		"feed":  feed.Name,
		"url":   feed.URL,
	})

	stale := false
	entries, err := l.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		cached := l.cachedEntries(ctx, feed.URL)
		if len(cached) == 0 {
			logger.WithError(err).Error("Failed to load feed")
			return Result{Index: index, Err: err}
		}
		logger.WithError(err).Warn("Fetch failed, showing cached entries")
		entries = cached
		stale = true
	} else if l.config.Cache != nil {
		if err := l.config.Cache.SaveEntries(ctx, feed.URL, entries); err != nil {
			logger.WithError(err).Warn("Failed to cache feed entries")
		}
	}

	content := models.FeedContent{
		Index:   index,
		Name:    feed.Name,
		URL:     feed.URL,
		Entries: entries,
		Stale:   stale,
	}

	html, err := l.view.Replace(content)
	if err != nil {
		logger.WithError(err).Error("Failed to render feed")
		return Result{Index: index, Content: content, Err: err}
	}

	logger.WithFields(log.Fields{
		"entries": len(entries),
		"stale":   stale,
	}).Info("Loaded feed")

	return Result{Index: index, Content: content, HTML: html}
}

func (l *Loader) cachedEntries(ctx context.Context, url string) []models.Entry {
	if l.config.Cache == nil {
		return nil
	}

	// The load context may already be expired when the fetch timed out
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()

	entries, err := l.config.Cache.GetEntries(ctx, url, l.config.MaxEntries)
	if err != nil {
		log.WithError(err).Warn("Failed to read cached entries")
		return nil
	}
	return entries
}

func (l *Loader) notify(res Result) {
	status := "ok"
	switch {
	case res.Err != nil:
		status = "error"
	case res.Content.Stale:
		status = "stale"
	}
	loadsTotal.WithLabelValues(status).Inc()

	if l.config.Notifier == nil {
		return
	}

	event := models.LoadEvent{
		Index:   res.Index,
		Name:    res.Content.Name,
		Entries: len(res.Content.Entries),
		Stale:   res.Content.Stale,
		At:      time.Now(),
	}
	if res.Err != nil {
		event.Err = res.Err.Error()
	}
	l.config.Notifier.NotifyLoad(event)
}

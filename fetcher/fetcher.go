package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"feedreader/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	fetchAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedreader_fetch_attempts_total",
		Help: "The total number of feed fetch attempts, retries included",
	})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedreader_fetch_errors_total",
		Help: "The total number of failed feed fetch attempts",
	}, []string{"kind"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedreader_fetch_duration_seconds",
		Help:    "Duration of a feed fetch including retries",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // Start at 50ms, double each bucket
	})
)

const (
	defaultMaxEntries = 20
	defaultRetries    = 3
	defaultTimeout    = 20 * time.Second
	maxSummaryLen     = 300
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
	entities     = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", "\"",
		"&#39;", "'",
		"&apos;", "'",
	)
)

// StatusError is returned when the feed server answers with a non-200 status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
}

// FetcherConfig holds configuration for fetching feeds
type FetcherConfig struct {
	Client     *http.Client
	UserAgent  string
	MaxEntries int
	Retries    int
	// InitialInterval is the first backoff wait between retries
	InitialInterval time.Duration
}

// Fetcher downloads and parses RSS, Atom and JSON feeds
type Fetcher struct {
	config FetcherConfig
	parser *gofeed.Parser
}

func New(config FetcherConfig) *Fetcher {
	if config.Client == nil {
		config.Client = &http.Client{Timeout: defaultTimeout}
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaultMaxEntries
	}
	if config.Retries < 0 {
		config.Retries = defaultRetries
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 200 * time.Millisecond
	}

	return &Fetcher{
		config: config,
		parser: gofeed.NewParser(),
	}
}

// Fetch downloads the feed at url and returns its newest entries.
// Network errors and 5xx responses are retried with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]models.Entry, error) {
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	feed, err := f.fetchWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	entries := convertItems(feed, f.config.MaxEntries)

	log.WithFields(log.Fields{
		"url":     url,
		"title":   feed.Title,
		"entries": len(entries),
		"latency": time.Since(start),
	}).Info("Fetched feed")

	return entries, nil
}

// Title fetches the feed and returns its title, falling back to the url
func (f *Fetcher) Title(ctx context.Context, url string) (string, error) {
	feed, err := f.fetchWithRetry(ctx, url)
	if err != nil {
		return "", err
	}
	if feed.Title == "" {
		return url, nil
	}
	return feed.Title, nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) (*gofeed.Feed, error) {
	// Set up exponential backoff for retries
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.config.InitialInterval
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0 // Bounded by the retry count and the context instead

	var feed *gofeed.Feed
	operation := func() error {
		fetchAttempts.Inc()

		parsed, err := f.fetchOnce(ctx, url)
		if err != nil {
			log.WithFields(log.Fields{
				"url":   url,
				"error": err,
			}).Warn("Feed fetch attempt failed")
			return err
		}
		feed = parsed
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.config.Retries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to fetch feed %s: %w", url, err)
	}
	return feed, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fetchErrors.WithLabelValues("request").Inc()
		return nil, backoff.Permanent(err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.config.Client.Do(req)
	if err != nil {
		fetchErrors.WithLabelValues("network").Inc()
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fetchErrors.WithLabelValues("status").Inc()
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode}
		if resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		fetchErrors.WithLabelValues("parse").Inc()
		return nil, backoff.Permanent(fmt.Errorf("failed to parse feed: %w", err))
	}

	return feed, nil
}

// IsStatus reports whether err is a StatusError with the given code
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

func convertItems(feed *gofeed.Feed, maxEntries int) []models.Entry {
	count := len(feed.Items)
	if count > maxEntries {
		count = maxEntries
	}

	entries := make([]models.Entry, 0, count)
	for _, item := range feed.Items[:count] {
		summary := item.Description
		if summary == "" {
			summary = item.Content
		}

		var published time.Time
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		var author string
		if item.Author != nil {
			author = item.Author.Name
		} else if len(item.Authors) > 0 && item.Authors[0] != nil {
			author = item.Authors[0].Name
		}

		entries = append(entries, models.Entry{
			Title:     strings.TrimSpace(item.Title),
			Link:      item.Link,
			Summary:   truncate(stripHTML(summary), maxSummaryLen),
			Author:    author,
			Published: published,
		})
	}
	return entries
}

// stripHTML removes tags and common entities, collapsing whitespace
func stripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = entities.Replace(s)
	s = spacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}

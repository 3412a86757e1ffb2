package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedreader/config"
	"feedreader/db"
	"feedreader/feeds"
	"feedreader/fetcher"
	"feedreader/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const validConfig = `
[[feeds]]
name = "Udacity Blog"
url = "http://blog.udacity.com/feed"

[[feeds]]
name = "CSS Tricks"
url = "http://feeds.feedburner.com/CssTricks"
`

const invalidConfig = `
[[feeds]]
name = "No URL"

[[feeds]]
url = "http://example.com/feed"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feeds.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := RootApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"feedreader"}, args...))
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := runApp(t, "validate", "--config", writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Contains(t, out, "2 feeds OK")
}

func TestValidateCommandReportsEveryProblem(t *testing.T) {
	exitCode := 0
	exiter := cli.OsExiter
	cli.OsExiter = func(code int) { exitCode = code }
	t.Cleanup(func() { cli.OsExiter = exiter })

	out, err := runApp(t, "validate", "--config", writeConfig(t, invalidConfig))
	require.Error(t, err)
	assert.Equal(t, 1, exitCode)
	assert.Contains(t, out, "feed 0: url is not defined")
	assert.Contains(t, out, "feed 1: name is not defined")
}

func TestAddCommand(t *testing.T) {
	path := writeConfig(t, validConfig)

	_, err := runApp(t, "add", "--config", path, "--no-check",
		"--name", "HTML5 Rocks", "--url", "http://feeds.feedburner.com/html5rocks")
	require.NoError(t, err)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Feeds, 3)
	assert.Equal(t, "Udacity Blog", cfg.Feeds[0].Name)
	assert.Equal(t, "HTML5 Rocks", cfg.Feeds[2].Name)
	assert.Equal(t, "http://feeds.feedburner.com/html5rocks", cfg.Feeds[2].URL)
}

func TestAppendFeed(t *testing.T) {
	tests := []struct {
		name    string
		feed    config.TomlFeed
		wantErr bool
	}{
		{name: "new feed", feed: config.TomlFeed{Name: "New", URL: "http://example.com/feed"}},
		{name: "trims whitespace", feed: config.TomlFeed{Name: " New ", URL: " http://example.com/feed "}},
		{name: "duplicate url", feed: config.TomlFeed{Name: "Again", URL: "http://blog.udacity.com/feed"}, wantErr: true},
		{name: "missing name", feed: config.TomlFeed{URL: "http://example.com/feed"}, wantErr: true},
		{name: "missing url", feed: config.TomlFeed{Name: "New"}, wantErr: true},
		{name: "blank name", feed: config.TomlFeed{Name: "   ", URL: "http://example.com/feed"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.TomlConfig{Feeds: []config.TomlFeed{
				{Name: "Udacity Blog", URL: "http://blog.udacity.com/feed"},
			}}

			err := appendFeed(cfg, tt.feed.Name, tt.feed.URL)
			if tt.wantErr {
				require.Error(t, err)
				assert.Len(t, cfg.Feeds, 1)
				return
			}
			require.NoError(t, err)
			require.Len(t, cfg.Feeds, 2)
			assert.Equal(t, "New", cfg.Feeds[1].Name)
			assert.Equal(t, "http://example.com/feed", cfg.Feeds[1].URL)
		})
	}
}

func TestResolveIndex(t *testing.T) {
	registry := feeds.NewRegistry([]feeds.Descriptor{
		{URL: "http://blog.udacity.com/feed", Name: "Udacity Blog"},
		{URL: "http://feeds.feedburner.com/CssTricks", Name: "CSS Tricks"},
	})

	tests := []struct {
		arg     string
		want    int
		wantErr bool
	}{
		{arg: "0", want: 0},
		{arg: "1", want: 1},
		{arg: "css tricks", want: 1},
		{arg: "Unknown", wantErr: true},
		{arg: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := resolveIndex(registry, tt.arg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestViolations(t *testing.T) {
	assert.Nil(t, violations(nil))

	single := errors.New("single")
	assert.Equal(t, []error{single}, violations(single))

	first, second := errors.New("first"), errors.New("second")
	assert.Equal(t, []error{first, second}, violations(errors.Join(first, second)))
}

func TestPrintEntries(t *testing.T) {
	var buf bytes.Buffer
	err := printEntries(&buf, models.FeedContent{
		Name:  "CSS Tricks",
		URL:   "http://feeds.feedburner.com/CssTricks",
		Stale: true,
		Entries: []models.Entry{
			{Title: "Grid", Link: "https://css-tricks.com/grid", Published: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
			{Title: "Undated", Link: "https://css-tricks.com/undated"},
		},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "CSS Tricks (cached)")
	assert.Contains(t, out, "1. 2024-03-01 Grid\n   https://css-tricks.com/grid")
	assert.Contains(t, out, "2. Undated\n   https://css-tricks.com/undated")
}

func TestTidyPeriodically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.db")
	require.NoError(t, db.Migrate(path))
	store, err := db.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tests := []struct {
		name     string
		interval time.Duration
	}{
		{name: "disabled", interval: 0},
		{name: "negative", interval: -time.Minute},
		{name: "ticking", interval: 10 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			done := make(chan struct{})
			assert.NotPanics(t, func() {
				defer close(done)
				tidyPeriodically(ctx, store, tt.interval, time.Hour)
			})

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("tidyPeriodically did not return")
			}
		})
	}
}

func TestListenAddress(t *testing.T) {
	tests := []struct {
		hostname string
		port     int
		want     string
	}{
		{hostname: "", port: 3000, want: ":3000"},
		{hostname: "localhost", port: 3000, want: "localhost:3000"},
		{hostname: "0.0.0.0", port: 8080, want: "0.0.0.0:8080"},
		{hostname: "::1", port: 3000, want: "[::1]:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, listenAddress(tt.hostname, tt.port))
		})
	}
}

func TestFetchProblem(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "gone",
			err:  fmt.Errorf("failed to fetch feed: %w", &fetcher.StatusError{URL: "http://example.com/feed", StatusCode: http.StatusNotFound}),
			want: "feed 2: feed no longer exists",
		},
		{
			name: "forbidden",
			err:  &fetcher.StatusError{URL: "http://example.com/feed", StatusCode: http.StatusForbidden},
			want: "feed 2: access denied",
		},
		{
			name: "server error",
			err:  &fetcher.StatusError{URL: "http://example.com/feed", StatusCode: http.StatusBadGateway},
			want: "feed 2: fetching http://example.com/feed: unexpected status 502",
		},
		{
			name: "network",
			err:  errors.New("connection refused"),
			want: "feed 2: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fetchProblem(2, tt.err)
			assert.Contains(t, err.Error(), tt.want)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

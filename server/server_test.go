package server_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"feedreader/feeds"
	"feedreader/loader"
	"feedreader/models"
	"feedreader/server"
	"feedreader/view"

	"github.com/PuerkitoBio/goquery"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher map[string][]models.Entry

func (f stubFetcher) Fetch(ctx context.Context, url string) ([]models.Entry, error) {
	entries, ok := f[url]
	if !ok {
		return nil, errors.New("unreachable")
	}
	return entries, nil
}

type testServer struct {
	app         *fiber.App
	menu        *view.Menu
	feedView    *view.FeedView
	broadcaster *server.Broadcaster
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithPing(t, 0)
}

func newTestServerWithPing(t *testing.T, pingInterval time.Duration) *testServer {
	t.Helper()

	registry := feeds.NewRegistry([]feeds.Descriptor{
		{URL: "https://example.com/a.rss", Name: "A"},
		{URL: "https://example.com/b.rss", Name: "B"},
		{URL: "https://example.com/down.rss", Name: "Down"},
	})
	fetcher := stubFetcher{
		"https://example.com/a.rss": {{Title: "A first", Link: "https://example.com/a/1"}, {Title: "A second", Link: "https://example.com/a/2"}},
		"https://example.com/b.rss": {{Title: "B first", Link: "https://example.com/b/1"}},
	}

	ts := &testServer{
		menu:        view.NewMenu(),
		feedView:    view.NewFeedView(),
		broadcaster: server.NewBroadcaster(),
	}

	l := loader.New(registry, fetcher, ts.feedView, loader.LoaderConfig{Notifier: ts.broadcaster})
	l.Start(context.Background())
	t.Cleanup(l.Shutdown)

	ts.app = server.Server(&server.ServerConfig{
		Registry:     registry,
		Loader:       l,
		FeedView:     ts.feedView,
		Menu:         ts.menu,
		Broadcaster:  ts.broadcaster,
		PingInterval: pingInterval,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string) (int, string) {
	t.Helper()
	resp, err := ts.app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestListFeeds(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, fiber.MethodGet, "/api/feeds")
	require.Equal(t, fiber.StatusOK, status)

	var got []feeds.Descriptor
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, "https://example.com/a.rss", got[0].URL)
}

func TestMenuToggle(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		method string
		target string
		hidden bool
	}{
		{fiber.MethodGet, "/api/menu", true},
		{fiber.MethodPost, "/api/menu/toggle", false},
		{fiber.MethodGet, "/api/menu", false},
		{fiber.MethodPost, "/api/menu/toggle", true},
	}

	for _, tt := range tests {
		status, body := ts.do(t, tt.method, tt.target)
		require.Equal(t, fiber.StatusOK, status)

		var got struct {
			Hidden bool `json:"hidden"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &got))
		assert.Equal(t, tt.hidden, got.Hidden, "%s %s", tt.method, tt.target)
	}
}

func TestPageReflectsMenuState(t *testing.T) {
	ts := newTestServer(t)

	bodyHidden := func() bool {
		status, body := ts.do(t, fiber.MethodGet, "/")
		require.Equal(t, fiber.StatusOK, status)
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		require.NoError(t, err)
		return doc.Find("body").HasClass(view.MenuHiddenClass)
	}

	assert.True(t, bodyHidden())
	ts.do(t, fiber.MethodPost, "/api/menu/toggle")
	assert.False(t, bodyHidden())
	ts.do(t, fiber.MethodPost, "/api/menu/toggle")
	assert.True(t, bodyHidden())
}

func TestLoadFeed(t *testing.T) {
	ts := newTestServer(t)

	status, body := ts.do(t, fiber.MethodPost, "/api/feeds/0/load")
	require.Equal(t, fiber.StatusOK, status)

	var first struct {
		Index   int    `json:"index"`
		Name    string `json:"name"`
		Entries int    `json:"entries"`
		HTML    string `json:"html"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &first))
	assert.Equal(t, "A", first.Name)
	assert.Equal(t, 2, first.Entries)

	_, fragment := ts.do(t, fiber.MethodGet, "/feed")
	count, err := view.CountEntries(fragment)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	status, body = ts.do(t, fiber.MethodPost, "/api/feeds/1/load")
	require.Equal(t, fiber.StatusOK, status)

	var second struct {
		HTML string `json:"html"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &second))
	assert.NotEqual(t, first.HTML, second.HTML)

	_, page := ts.do(t, fiber.MethodGet, "/")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	assert.Equal(t, "B", doc.Find(".header-title").Text())
	assert.Equal(t, 1, doc.Find(".feed .entry").Length())
}

func TestLoadFeedErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "not a number", target: "/api/feeds/abc/load", status: fiber.StatusBadRequest},
		{name: "out of range", target: "/api/feeds/9/load", status: fiber.StatusNotFound},
		{name: "negative", target: "/api/feeds/-1/load", status: fiber.StatusNotFound},
		{name: "source down", target: "/api/feeds/2/load", status: fiber.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := ts.do(t, fiber.MethodPost, tt.target)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, fiber.MethodPost, "/api/feeds/0/load")
	status, body := ts.do(t, fiber.MethodGet, "/metrics")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "feedreader_loads_total")
}

func TestRemoveSSEClient(t *testing.T) {
	ts := newTestServer(t)

	ts.broadcaster.AddClient("client", make(chan models.LoadEvent, 1), make(chan models.MenuEvent, 1))
	require.Equal(t, 1, ts.broadcaster.Clients())

	status, _ := ts.do(t, fiber.MethodDelete, "/feed/sse?key=client")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 0, ts.broadcaster.Clients())
}

// readEvent reads one "event: ...\ndata: ...\n\n" frame
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			if name != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestFeedStream(t *testing.T) {
	ts := newTestServerWithPing(t, 20*time.Millisecond)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go ts.app.Listener(ln)
	t.Cleanup(func() { _ = ts.app.ShutdownWithTimeout(time.Second) })

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/feed/sse", nil)
	require.NoError(t, err)
	// Keep the stream uncompressed so frames can be read as they arrive
	req.Header.Set("Accept-Encoding", "identity")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := bufio.NewReader(resp.Body)

	name, key := readEvent(t, events)
	require.Equal(t, "init", name)
	_, err = uuid.Parse(key)
	assert.NoError(t, err, "init carries the client key")
	assert.Equal(t, 1, ts.broadcaster.Clients())

	status, _ := ts.do(t, fiber.MethodPost, "/api/menu/toggle")
	require.Equal(t, fiber.StatusOK, status)
	status, _ = ts.do(t, fiber.MethodPost, "/api/feeds/0/load")
	require.Equal(t, fiber.StatusOK, status)

	seen := map[string]string{}
	for seen["menu"] == "" || seen["load"] == "" || !hasKey(seen, "ping") {
		name, data := readEvent(t, events)
		seen[name] = data
	}

	var menu models.MenuEvent
	require.NoError(t, json.Unmarshal([]byte(seen["menu"]), &menu))
	assert.False(t, menu.Hidden)

	var load models.LoadEvent
	require.NoError(t, json.Unmarshal([]byte(seen["load"]), &load))
	assert.Equal(t, 0, load.Index)
	assert.Equal(t, "A", load.Name)
	assert.Equal(t, 2, load.Entries)

	require.NoError(t, resp.Body.Close())
	assert.Eventually(t, func() bool {
		return ts.broadcaster.Clients() == 0
	}, 2*time.Second, 10*time.Millisecond, "client is removed once the stream ends")
}

func hasKey(m map[string]string, key string) bool {
	_, ok := m[key]
	return ok
}

// Package view renders the reader page, the feed display region and the menu state
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"sync"

	"feedreader/feeds"
	"feedreader/models"

	"github.com/PuerkitoBio/goquery"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// FeedView holds the content of the feed display region. Every Replace
// discards the previous content.
type FeedView struct {
	mu      sync.RWMutex
	content models.FeedContent
	html    string
}

func NewFeedView() *FeedView {
	v := &FeedView{}
	html, err := renderFeed(models.FeedContent{Index: -1})
	if err != nil {
		panic(fmt.Sprintf("failed to render empty feed: %v", err))
	}
	v.content = models.FeedContent{Index: -1}
	v.html = html
	return v
}

// Replace renders content and makes it the current view
func (v *FeedView) Replace(content models.FeedContent) (string, error) {
	html, err := renderFeed(content)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.content = content
	v.html = html
	return html, nil
}

func (v *FeedView) HTML() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.html
}

func (v *FeedView) Content() models.FeedContent {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.content
}

// EntryCount counts the .entry elements inside the .feed container
func (v *FeedView) EntryCount() int {
	count, err := CountEntries(v.HTML())
	if err != nil {
		return 0
	}
	return count
}

// CountEntries counts ".feed .entry" elements in a rendered fragment
func CountEntries(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, fmt.Errorf("failed to parse feed html: %w", err)
	}
	return doc.Find(".feed .entry").Length(), nil
}

func renderFeed(content models.FeedContent) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "feed", content); err != nil {
		return "", fmt.Errorf("failed to render feed %q: %w", content.Name, err)
	}
	return buf.String(), nil
}

// PageData is everything the single page needs
type PageData struct {
	BodyClass string
	Title     string
	Feeds     []feeds.Descriptor
	Feed      template.HTML
}

// NewPageData assembles the page from the menu, registry and current feed view
func NewPageData(menu *Menu, registry *feeds.Registry, feedView *FeedView) PageData {
	title := "Feeds"
	if name := feedView.Content().Name; name != "" {
		title = name
	}

	return PageData{
		BodyClass: menu.BodyClass(),
		Title:     title,
		Feeds:     registry.All(),
		// Rendered by html/template in renderFeed, so it is already escaped
		Feed: template.HTML(feedView.HTML()),
	}
}

func RenderPage(w io.Writer, data PageData) error {
	if err := templates.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}

package models

import "time"

// Entry is a single rendered item of a feed
type Entry struct {
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Summary   string    `json:"summary"`
	Author    string    `json:"author,omitempty"`
	Published time.Time `json:"published"`
}

// FeedContent is what the feed display region currently shows
type FeedContent struct {
	Index   int     `json:"index"`
	Name    string  `json:"name"`
	URL     string  `json:"url"`
	Entries []Entry `json:"entries"`
	// Stale is set when the entries come from the cache after a failed fetch
	Stale bool `json:"stale"`
}

// LoadEvent fired when a feed load completes, successfully or not
type LoadEvent struct {
	Index   int       `json:"index"`
	Name    string    `json:"name"`
	Entries int       `json:"entries"`
	Stale   bool      `json:"stale"`
	Err     string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// MenuEvent fired when the menu is toggled
type MenuEvent struct {
	Hidden bool `json:"hidden"`
}

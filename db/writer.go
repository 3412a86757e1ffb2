package db

import (
	"context"
	"fmt"
	"time"

	"feedreader/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// SaveEntries replaces the cached entries of a feed
func (s *Store) SaveEntries(ctx context.Context, feedURL string, entries []models.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin error: %w", err)
	}
	defer tx.Rollback()

	deleteEntries := sqlbuilder.SQLite.NewDeleteBuilder()
	deleteEntries.DeleteFrom("entries").Where(deleteEntries.Equal("feed_url", feedURL))
	query, args := deleteEntries.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete error: %w", err)
	}

	if len(entries) > 0 {
		fetchedAt := time.Now().Unix()
		insertEntries := sqlbuilder.SQLite.NewInsertBuilder()
		insertEntries.InsertInto("entries").Cols("feed_url", "position", "title", "link", "summary", "author", "published_at", "fetched_at")
		for i, entry := range entries {
			insertEntries.Values(feedURL, i, entry.Title, entry.Link, entry.Summary, entry.Author, unixOrZero(entry.Published), fetchedAt)
		}
		query, args = insertEntries.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit error: %w", err)
	}

	log.WithFields(log.Fields{
		"feed":    feedURL,
		"entries": len(entries),
	}).Debug("Cached feed entries")

	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

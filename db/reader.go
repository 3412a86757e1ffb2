package db

import (
	"context"
	"fmt"
	"time"

	"feedreader/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// GetEntries returns the cached entries of a feed in feed order. A limit of
// zero returns all of them.
func (s *Store) GetEntries(ctx context.Context, feedURL string, limit int) ([]models.Entry, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("title", "link", "summary", "author", "published_at").
		From("entries").
		Where(sb.Equal("feed_url", feedURL)).
		OrderBy("position").Asc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		var entry models.Entry
		var published int64
		if err := rows.Scan(&entry.Title, &entry.Link, &entry.Summary, &entry.Author, &published); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		if published != 0 {
			entry.Published = time.Unix(published, 0).UTC()
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// FetchedAt returns when a feed was last cached, or the zero time
func (s *Store) FetchedAt(ctx context.Context, feedURL string) (time.Time, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COALESCE(MAX(fetched_at), 0)").From("entries").Where(sb.Equal("feed_url", feedURL))

	query, args := sb.Build()
	var fetchedAt int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&fetchedAt); err != nil {
		return time.Time{}, fmt.Errorf("query error: %w", err)
	}
	if fetchedAt == 0 {
		return time.Time{}, nil
	}
	return time.Unix(fetchedAt, 0), nil
}

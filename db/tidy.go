package db

import (
	"context"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy removes cached entries fetched longer than maxAge ago
func Tidy(database string, maxAge time.Duration) (int64, error) {
	store, err := Open(database)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	return store.Tidy(context.Background(), maxAge)
}

func (s *Store) Tidy(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	deleteEntries := sb.SQLite.NewDeleteBuilder()
	query, args := deleteEntries.DeleteFrom("entries").Where(deleteEntries.LessThan("fetched_at", cutoff)).Build()

	log.WithFields(log.Fields{
		"sql":  query,
		"args": args,
	}).Info("Tidying database")

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete error: %w", err)
	}

	return res.RowsAffected()
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

var _ EntryRepository = (*EntryRepo)(nil)

// EntryRepo handles database operations for feed entries
type EntryRepo struct {
	db *DB
}

func NewEntryRepository(db *DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// ExistingIDs returns every external id already stored for the feed.
func (r *EntryRepo) ExistingIDs(ctx context.Context, feedID int64) (map[string]struct{}, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("external_id").From("entries").Where(sb.Equal("feed_id", feedID))

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query existing ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		ids[id] = struct{}{}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating external ids: %w", err)
	}

	return ids, nil
}

// Persist inserts entries in one transaction and returns how many were new.
// Entries whose external id is already stored for the feed are ignored.
func (r *EntryRepo) Persist(ctx context.Context, feedID int64, entries []NewEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Unix()
	inserted := 0

	for _, entry := range entries {
		media, err := json.Marshal(nonNil(entry.Media))
		if err != nil {
			return 0, fmt.Errorf("failed to encode media: %w", err)
		}

		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertIgnoreInto("entries").
			Cols("feed_id", "external_id", "title", "link", "published_at", "summary", "content", "author", "media", "created_at").
			Values(feedID, entry.ExternalID, entry.Title, entry.Link, toNullUnix(entry.PublishedAt), entry.Summary, entry.Content, entry.Author, string(media), now)

		query, args := ib.Build()
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entry %s: %w", entry.ExternalID, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read affected rows: %w", err)
		}
		inserted += int(affected)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entries: %w", err)
	}

	return inserted, nil
}

func (r *EntryRepo) CountEntries(ctx context.Context, feedID int64) (int, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COUNT(*)").From("entries").Where(sb.Equal("feed_id", feedID))

	query, args := sb.Build()

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// ListEntries returns the newest entries of a feed first.
func (r *EntryRepo) ListEntries(ctx context.Context, feedID int64, limit int) ([]Entry, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "feed_id", "external_id", "title", "link", "published_at", "summary", "content", "author", "media", "created_at").
		From("entries").
		Where(sb.Equal("feed_id", feedID)).
		OrderBy("COALESCE(published_at, created_at) DESC", "id DESC").
		Limit(limit)

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry       Entry
			publishedAt sql.NullInt64
			media       string
			createdAt   int64
		)

		err := rows.Scan(&entry.ID, &entry.FeedID, &entry.ExternalID, &entry.Title, &entry.Link,
			&publishedAt, &entry.Summary, &entry.Content, &entry.Author, &media, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}

		if err := json.Unmarshal([]byte(media), &entry.Media); err != nil {
			return nil, fmt.Errorf("failed to decode media for entry %d: %w", entry.ID, err)
		}
		entry.PublishedAt = fromNullUnix(publishedAt)
		entry.CreatedAt = time.Unix(createdAt, 0)

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entry rows: %w", err)
	}

	return entries, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

var _ FeedRepository = (*FeedRepo)(nil)

var feedColumns = []string{
	"id", "url", "name", "description", "icon",
	"etag", "last_modified", "last_status", "last_fetched_at",
	"created_at", "updated_at",
}

// FeedRepo handles database operations for feeds
type FeedRepo struct {
	db *DB
}

func NewFeedRepository(db *DB) *FeedRepo {
	return &FeedRepo{db: db}
}

// UpsertFeed registers a feed by url and returns its id. Empty name,
// description and icon keep whatever is already stored.
func (r *FeedRepo) UpsertFeed(ctx context.Context, url, name, description, icon string) (int64, error) {
	now := time.Now().UTC().Unix()

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("feeds").
		Cols("url", "name", "description", "icon", "created_at", "updated_at").
		Values(url, name, description, icon, now, now)
	ib.SQL(`ON CONFLICT(url) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE feeds.name END,
		description = CASE WHEN excluded.description != '' THEN excluded.description ELSE feeds.description END,
		icon = CASE WHEN excluded.icon != '' THEN excluded.icon ELSE feeds.icon END,
		updated_at = excluded.updated_at
		RETURNING id`)

	query, args := ib.Build()

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to upsert feed: %w", err)
	}

	return id, nil
}

// UpdateFeedMetadata fills name, description and icon from the upstream
// document without overriding values set by the feed definition.
func (r *FeedRepo) UpdateFeedMetadata(ctx context.Context, id int64, name, description, icon string) error {
	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("feeds").
		Set(
			"name = CASE WHEN name = '' THEN "+ub.Var(name)+" ELSE name END",
			"description = CASE WHEN description = '' THEN "+ub.Var(description)+" ELSE description END",
			"icon = CASE WHEN icon = '' THEN "+ub.Var(icon)+" ELSE icon END",
			ub.Assign("updated_at", time.Now().UTC().Unix()),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}

	return nil
}

func (r *FeedRepo) UpdateValidators(ctx context.Context, id int64, validators Validators) error {
	fetchedAt := validators.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("feeds").
		Set(
			ub.Assign("etag", validators.Etag),
			ub.Assign("last_modified", validators.LastModified),
			ub.Assign("last_status", validators.LastStatus),
			ub.Assign("last_fetched_at", fetchedAt.UTC().Unix()),
			ub.Assign("updated_at", time.Now().UTC().Unix()),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update validators: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("failed to update validators: feed %d not found", id)
	}

	return nil
}

func (r *FeedRepo) DeleteFeed(ctx context.Context, url string) error {
	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom("feeds").Where(db.Equal("url", url))

	query, args := db.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete feed: %w", err)
	}

	return nil
}

// GetFeed returns nil, nil when the feed does not exist.
func (r *FeedRepo) GetFeed(ctx context.Context, id int64) (*Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("id", id))

	return r.getOne(ctx, sb)
}

func (r *FeedRepo) GetFeedByURL(ctx context.Context, url string) (*Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal("url", url))

	return r.getOne(ctx, sb)
}

func (r *FeedRepo) ListFeeds(ctx context.Context) ([]Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").OrderBy("id").Asc()

	query, args := sb.Build()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed row: %w", err)
		}
		feeds = append(feeds, *feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed rows: %w", err)
	}

	return feeds, nil
}

func (r *FeedRepo) GetFeedCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feeds").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get feed count: %w", err)
	}
	return count, nil
}

func (r *FeedRepo) getOne(ctx context.Context, sb *sqlbuilder.SelectBuilder) (*Feed, error) {
	query, args := sb.Build()

	feed, err := scanFeed(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	return feed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(row scanner) (*Feed, error) {
	var (
		feed          Feed
		lastFetchedAt sql.NullInt64
		createdAt     int64
		updatedAt     int64
	)

	err := row.Scan(
		&feed.ID, &feed.URL, &feed.Name, &feed.Description, &feed.Icon,
		&feed.Etag, &feed.LastModified, &feed.LastStatus, &lastFetchedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	feed.LastFetchedAt = fromNullUnix(lastFetchedAt)
	feed.CreatedAt = time.Unix(createdAt, 0)
	feed.UpdatedAt = time.Unix(updatedAt, 0)

	return &feed, nil
}

func fromNullUnix(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().Unix(), Valid: true}
}

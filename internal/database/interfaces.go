package database

import (
	"context"
)

type FeedRepository interface {
	GetFeed(ctx context.Context, id int64) (*Feed, error)
	GetFeedByURL(ctx context.Context, url string) (*Feed, error)
	ListFeeds(ctx context.Context) ([]Feed, error)
	GetFeedCount(ctx context.Context) (int, error)

	UpsertFeed(ctx context.Context, url, name, description, icon string) (int64, error)
	UpdateFeedMetadata(ctx context.Context, id int64, name, description, icon string) error
	UpdateValidators(ctx context.Context, id int64, validators Validators) error
	DeleteFeed(ctx context.Context, url string) error
}

// EntryRepository is never called concurrently for the same feed id; callers
// serialize updates per feed.
type EntryRepository interface {
	ExistingIDs(ctx context.Context, feedID int64) (map[string]struct{}, error)
	Persist(ctx context.Context, feedID int64, entries []NewEntry) (int, error)
	CountEntries(ctx context.Context, feedID int64) (int, error)
	ListEntries(ctx context.Context, feedID int64, limit int) ([]Entry, error)
}

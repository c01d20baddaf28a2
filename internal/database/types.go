package database

import (
	"time"
)

type Feed struct {
	ID            int64
	URL           string // join key with the feed definitions file
	Name          string
	Description   string
	Icon          string
	Etag          string
	LastModified  string
	LastStatus    string
	LastFetchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validators is the cache-validation state written after every fetch attempt.
type Validators struct {
	Etag         string
	LastModified string
	LastStatus   string
	FetchedAt    time.Time
}

type Entry struct {
	ID          int64
	FeedID      int64
	ExternalID  string
	Title       string
	Link        string
	PublishedAt *time.Time
	Summary     string
	Content     string
	Author      string
	Media       []string
	CreatedAt   time.Time
}

// NewEntry is an entry that has not been persisted yet.
type NewEntry struct {
	ExternalID  string
	Title       string
	Link        string
	PublishedAt *time.Time
	Summary     string
	Content     string
	Author      string
	Media       []string
}

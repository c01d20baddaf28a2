package api

import (
	"context"

	"github.com/lysyi3m/rss-sync/internal/broadcast"
	"github.com/lysyi3m/rss-sync/internal/database"
	"github.com/lysyi3m/rss-sync/internal/feed"
	"github.com/lysyi3m/rss-sync/internal/registry"
	"github.com/lysyi3m/rss-sync/internal/tasks"
)

// Updater is the manual trigger surface of the scheduler.
type Updater interface {
	UpdateAll(ctx context.Context, force bool) []tasks.Outcome
	UpdateOne(ctx context.Context, id int64, force bool) tasks.Outcome
	Go(fn func(ctx context.Context))
}

type FeedRegistry interface {
	Get(id int64) (registry.Definition, bool)
	List() []registry.Definition
	Count() int
	ExportINI(id int64) (string, error)
	Apply(ctx context.Context, text string) ([]registry.Definition, error)
	Remove(ctx context.Context, url string) error
}

// FeedFetcher fetches ad-hoc definitions for the debug endpoints.
type FeedFetcher interface {
	Fetch(ctx context.Context, def registry.Definition, validators feed.Validators, force bool) (*feed.Result, error)
}

var (
	_ Updater      = (*tasks.Scheduler)(nil)
	_ FeedRegistry = (*registry.Registry)(nil)
	_ FeedFetcher  = (*feed.Pipeline)(nil)
)

type Handler struct {
	registry  FeedRegistry
	feedRepo  database.FeedRepository
	entryRepo database.EntryRepository
	updater   Updater
	fetcher   FeedFetcher
	hub       *broadcast.Hub
	generator *RSSGenerator
	version   string
}

type OutcomeResponse struct {
	FeedID   int64        `json:"feed_id"`
	URL      string       `json:"url"`
	Status   tasks.Status `json:"status"`
	Inserted int          `json:"inserted"`
	Duration string       `json:"duration"`
	Error    string       `json:"error,omitempty"`
}

func newOutcomeResponse(o tasks.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		FeedID:   o.FeedID,
		URL:      o.URL,
		Status:   o.Status,
		Inserted: o.Inserted,
		Duration: o.Duration.String(),
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}

// DebugUpdateRequest is the body of POST /debug/update. Data is a feed id;
// without it every feed is updated.
type DebugUpdateRequest struct {
	Action string `json:"action" binding:"required"`
	Data   *int64 `json:"data"`
}

package tasks

import (
	"context"

	"github.com/lysyi3m/rss-sync/internal/feed"
	"github.com/lysyi3m/rss-sync/internal/registry"
)

// FeedPipeline fetches and normalizes one feed. *feed.Pipeline implements it.
type FeedPipeline interface {
	Fetch(ctx context.Context, def registry.Definition, validators feed.Validators, force bool) (*feed.Result, error)
	ExtractContent(ctx context.Context, def registry.Definition, link string) (string, error)
}

// DefinitionSource is the read side of the feed registry. Returned
// definitions are copies.
type DefinitionSource interface {
	Get(id int64) (registry.Definition, bool)
	Enabled() []registry.Definition
}

var (
	_ FeedPipeline     = (*feed.Pipeline)(nil)
	_ DefinitionSource = (*registry.Registry)(nil)
)

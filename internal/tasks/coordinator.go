package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/lysyi3m/rss-sync/internal/database"
	"github.com/lysyi3m/rss-sync/internal/feed"
	"github.com/lysyi3m/rss-sync/internal/registry"
)

// Coordinator runs single feed updates. Every run holds the feed's entry in
// the lock set for its whole duration and ends with a definite Outcome.
type Coordinator struct {
	locks     *LockSet
	pipeline  FeedPipeline
	feedRepo  database.FeedRepository
	entryRepo database.EntryRepository
}

func NewCoordinator(locks *LockSet, pipeline FeedPipeline, feedRepo database.FeedRepository, entryRepo database.EntryRepository) *Coordinator {
	return &Coordinator{
		locks:     locks,
		pipeline:  pipeline,
		feedRepo:  feedRepo,
		entryRepo: entryRepo,
	}
}

func (c *Coordinator) Locks() *LockSet {
	return c.locks
}

// Update fetches def and stores its new entries. def is used as given for
// the whole run. onLocked, when set, is called once the feed lock is held.
// A feed that is already being updated is skipped, not waited for.
func (c *Coordinator) Update(ctx context.Context, def registry.Definition, force bool, onLocked func()) (outcome Outcome) {
	task := NewTask(TaskTypeUpdateFeed, def.URL, force)
	outcome = Outcome{FeedID: def.ID, URL: def.URL}

	if !c.locks.TryAcquire(def.ID) {
		outcome.Status = StatusSkippedLocked
		observe(outcome)
		slog.Debug("Feed update already in flight, skipping", "feed", def.URL, "id", def.ID)
		return outcome
	}
	defer c.locks.Release(def.ID)

	task.Start()
	feedUpdatesInFlight.Inc()

	defer func() {
		feedUpdatesInFlight.Dec()
		if r := recover(); r != nil {
			outcome.Status = StatusFailed
			outcome.Inserted = 0
			outcome.Err = fmt.Errorf("panic during feed update: %v", r)
		}
		outcome.Duration = task.GetDuration()
		observe(outcome)
		logOutcome(task, outcome)
	}()

	if onLocked != nil {
		onLocked()
	}

	outcome.Status, outcome.Inserted, outcome.Err = c.run(ctx, def, force)
	return outcome
}

func (c *Coordinator) run(ctx context.Context, def registry.Definition, force bool) (Status, int, error) {
	record, err := c.feedRepo.GetFeed(ctx, def.ID)
	if err != nil {
		return StatusFailed, 0, &PersistError{FeedID: def.ID, Err: fmt.Errorf("failed to load feed record: %w", err)}
	}
	if record == nil {
		return StatusFailed, 0, &PersistError{FeedID: def.ID, Err: ErrFeedNotFound}
	}

	validators := feed.Validators{Etag: record.Etag, LastModified: record.LastModified}

	result, err := c.pipeline.Fetch(ctx, def, validators, force)
	if err != nil {
		c.recordFailure(ctx, record, err)
		return StatusFailed, 0, err
	}

	resp := result.Response
	if result.Document == nil {
		if err := c.writeValidators(ctx, def.ID, resp, "304"); err != nil {
			return StatusFailed, 0, err
		}
		if _, err := c.entryRepo.Persist(ctx, def.ID, nil); err != nil {
			return StatusFailed, 0, &PersistError{FeedID: def.ID, Err: err}
		}
		return StatusUnchanged, 0, nil
	}

	existing, err := c.entryRepo.ExistingIDs(ctx, def.ID)
	if err != nil {
		err = &PersistError{FeedID: def.ID, Err: fmt.Errorf("failed to load existing entries: %w", err)}
		c.recordFailure(ctx, record, err)
		return StatusFailed, 0, err
	}

	fresh := filterNew(result.Document.Entries, existing)
	if def.ExtractContent {
		c.extractContent(ctx, def, fresh)
	}

	inserted, err := c.entryRepo.Persist(ctx, def.ID, lo.Map(fresh, func(e feed.Entry, _ int) database.NewEntry {
		return database.NewEntry(e)
	}))
	if err != nil {
		err = &PersistError{FeedID: def.ID, Err: err}
		c.recordFailure(ctx, record, err)
		return StatusFailed, 0, err
	}

	meta := result.Document.Metadata
	if err := c.feedRepo.UpdateFeedMetadata(ctx, def.ID, meta.Title, meta.Description, meta.ImageURL); err != nil {
		slog.Warn("Failed to update feed metadata", "feed", def.URL, "error", err)
	}

	if err := c.writeValidators(ctx, def.ID, resp, strconv.Itoa(resp.StatusCode)); err != nil {
		return StatusFailed, inserted, err
	}

	return StatusUpdated, inserted, nil
}

// filterNew drops entries already stored and repeats within the document,
// keeping the first occurrence.
func filterNew(entries []feed.Entry, existing map[string]struct{}) []feed.Entry {
	seen := make(map[string]struct{}, len(entries))
	return lo.Filter(entries, func(e feed.Entry, _ int) bool {
		if _, ok := existing[e.ExternalID]; ok {
			return false
		}
		if _, ok := seen[e.ExternalID]; ok {
			return false
		}
		seen[e.ExternalID] = struct{}{}
		return true
	})
}

// extractContent replaces Content with the readable article for each entry.
// Failures leave the entry as parsed.
func (c *Coordinator) extractContent(ctx context.Context, def registry.Definition, entries []feed.Entry) {
	success, failed := 0, 0
	for i := range entries {
		if ctx.Err() != nil {
			return
		}
		if entries[i].Link == "" {
			continue
		}

		content, err := c.pipeline.ExtractContent(ctx, def, entries[i].Link)
		if err != nil {
			failed++
			slog.Debug("Failed to extract content", "feed", def.URL, "url", entries[i].Link, "error", err)
			continue
		}
		if content != "" {
			entries[i].Content = content
		}
		success++
	}

	slog.Debug("Content extraction finished", "feed", def.URL, "success", success, "errors", failed)
}

func (c *Coordinator) writeValidators(ctx context.Context, feedID int64, resp *feed.Response, lastStatus string) error {
	err := c.feedRepo.UpdateValidators(ctx, feedID, database.Validators{
		Etag:         resp.Etag,
		LastModified: resp.LastModified,
		LastStatus:   lastStatus,
		FetchedAt:    time.Now().UTC(),
	})
	if err != nil {
		return &PersistError{FeedID: feedID, Err: fmt.Errorf("failed to update validators: %w", err)}
	}
	return nil
}

// recordFailure stores a failed attempt in lastStatus and keeps the previous
// validators.
func (c *Coordinator) recordFailure(ctx context.Context, record *database.Feed, cause error) {
	err := c.feedRepo.UpdateValidators(ctx, record.ID, database.Validators{
		Etag:         record.Etag,
		LastModified: record.LastModified,
		LastStatus:   FailureStatus(cause),
		FetchedAt:    time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to record feed failure", "feed", record.URL, "error", err)
	}
}

// FailureStatus renders err as a lastStatus value: "HTTP <code>" for
// unexpected responses, "error: <message>" otherwise.
func FailureStatus(err error) string {
	var fetchErr *feed.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
		return "HTTP " + strconv.Itoa(fetchErr.StatusCode)
	}
	return "error: " + err.Error()
}

func logOutcome(task Task, outcome Outcome) {
	if outcome.Err != nil {
		slog.Error("Task failed",
			"type", task.Type,
			"id", task.ID,
			"feed", task.FeedURL,
			"force", task.Force,
			"duration", outcome.Duration,
			"error", outcome.Err)
		return
	}

	slog.Info("Task completed",
		"type", task.Type,
		"id", task.ID,
		"feed", task.FeedURL,
		"force", task.Force,
		"duration", outcome.Duration,
		"status", outcome.Status,
		"new", outcome.Inserted)
}

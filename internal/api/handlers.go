package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/lysyi3m/rss-sync/internal/broadcast"
	"github.com/lysyi3m/rss-sync/internal/database"
	"github.com/lysyi3m/rss-sync/internal/ini"
	"github.com/lysyi3m/rss-sync/internal/registry"
	"github.com/lysyi3m/rss-sync/internal/tasks"
)

const (
	defaultEntriesLimit = 50
	maxEntriesLimit     = 500
	maxDefinitionsBody  = 1 << 20
)

func NewHandler(reg FeedRegistry, feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	updater Updater, fetcher FeedFetcher, hub *broadcast.Hub, version string) *Handler {
	return &Handler{
		registry:  reg,
		feedRepo:  feedRepo,
		entryRepo: entryRepo,
		updater:   updater,
		fetcher:   fetcher,
		hub:       hub,
		generator: NewRSSGenerator(version),
		version:   version,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   h.version,
		"observers": h.hub.Count(),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	}

	health["loaded_definitions"] = h.registry.Count()

	c.JSON(http.StatusOK, health)
}

// ListFeeds reads the stored record and entry count of each definition one
// feed at a time.
func (h *Handler) ListFeeds(c *gin.Context) {
	ctx := c.Request.Context()
	defs := h.registry.List()

	feeds := make([]map[string]interface{}, 0, len(defs))
	for _, def := range defs {
		feedInfo := map[string]interface{}{
			"id":         def.ID,
			"url":        def.URL,
			"name":       def.Name,
			"status":     def.Status,
			"groups":     lo.Ternary(def.Groups == nil, []string{}, def.Groups),
			"type":       def.Type,
			"definition": def,
		}

		if record, err := h.feedRepo.GetFeed(ctx, def.ID); err == nil && record != nil {
			feedInfo["title"] = record.Name
			feedInfo["description"] = record.Description
			feedInfo["icon"] = record.Icon
			feedInfo["last_status"] = record.LastStatus
			feedInfo["last_fetched_at"] = record.LastFetchedAt
			feedInfo["updated_at"] = record.UpdatedAt
		}

		if entryCount, err := h.entryRepo.CountEntries(ctx, def.ID); err == nil {
			feedInfo["entry_count"] = entryCount
		}

		feeds = append(feeds, feedInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) GetFeedINI(c *gin.Context) {
	id, ok := feedIDParam(c)
	if !ok {
		return
	}

	text, err := h.registry.ExportINI(id)
	if errors.Is(err, registry.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to export feed definition", "id", id, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}

// ApplyFeeds adds or replaces the definitions in the request body, given in
// the definitions text format, and saves the definitions file.
func (h *Handler) ApplyFeeds(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDefinitionsBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	defs, err := h.registry.Apply(c.Request.Context(), string(body))
	var formatErr *ini.FormatError
	if errors.As(err, &formatErr) || errors.Is(err, registry.ErrInvalidDefinition) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		slog.Error("Failed to apply feed definitions", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	slog.Info("Feed definitions applied", "count", len(defs))
	c.JSON(http.StatusOK, gin.H{"definitions": defs, "total": len(defs)})
}

func (h *Handler) DeleteFeed(c *gin.Context) {
	def, ok := h.definitionParam(c)
	if !ok {
		return
	}

	if err := h.registry.Remove(c.Request.Context(), def.URL); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
			return
		}
		slog.Error("Failed to remove feed", "feed", def.URL, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	slog.Info("Feed removed", "id", def.ID, "feed", def.URL)
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetFeedEntries(c *gin.Context) {
	def, ok := h.definitionParam(c)
	if !ok {
		return
	}

	limit := defaultEntriesLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = min(parsed, maxEntriesLimit)
	}

	entries, err := h.entryRepo.ListEntries(c.Request.Context(), def.ID, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_entries", "feed", def.URL, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feed_id": def.ID,
		"entries": entries,
		"total":   len(entries),
	})
}

// GetFeedRSS renders the stored entries of a feed as RSS 2.0.
func (h *Handler) GetFeedRSS(c *gin.Context) {
	def, ok := h.definitionParam(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	record, err := h.feedRepo.GetFeed(ctx, def.ID)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "feed", def.URL, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	entries, err := h.entryRepo.ListEntries(ctx, def.ID, defaultEntriesLimit)
	if err != nil {
		slog.Error("Database error", "operation", "list_entries", "feed", def.URL, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	selfURL := requestBaseURL(c) + c.Request.URL.Path
	rss, err := h.generator.Run(*record, def, entries, selfURL)
	if err != nil {
		slog.Error("RSS generation error", "feed", def.URL, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("X-Feed-Entries", strconv.Itoa(len(entries)))
	c.Header("X-Last-Updated", record.UpdatedAt.Format(time.RFC3339))
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(rss))
}

// UpdateFeeds triggers a cycle over all enabled feeds. With wait=true the
// outcomes are returned, otherwise the cycle runs in the background.
func (h *Handler) UpdateFeeds(c *gin.Context) {
	force := queryBool(c, "force")

	if !queryBool(c, "wait") {
		h.updater.Go(func(ctx context.Context) {
			h.updater.UpdateAll(ctx, force)
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled", "force": force})
		return
	}

	outcomes := h.updater.UpdateAll(c.Request.Context(), force)
	c.JSON(http.StatusOK, map[string]interface{}{
		"outcomes": lo.Map(outcomes, func(o tasks.Outcome, _ int) OutcomeResponse { return newOutcomeResponse(o) }),
		"total":    len(outcomes),
	})
}

func (h *Handler) UpdateFeed(c *gin.Context) {
	def, ok := h.definitionParam(c)
	if !ok {
		return
	}
	if !def.Enabled() {
		c.JSON(http.StatusConflict, gin.H{"error": "Feed is disabled"})
		return
	}

	force := queryBool(c, "force")

	if !queryBool(c, "wait") {
		h.updater.Go(func(ctx context.Context) {
			h.updater.UpdateOne(ctx, def.ID, force)
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled", "feed_id": def.ID, "force": force})
		return
	}

	outcome := h.updater.UpdateOne(c.Request.Context(), def.ID, force)
	c.JSON(http.StatusOK, newOutcomeResponse(outcome))
}

func (h *Handler) definitionParam(c *gin.Context) (registry.Definition, bool) {
	id, ok := feedIDParam(c)
	if !ok {
		return registry.Definition{}, false
	}

	def, found := h.registry.Get(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return registry.Definition{}, false
	}
	return def, true
}

func feedIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed id"})
		return 0, false
	}
	return id, true
}

func queryBool(c *gin.Context, key string) bool {
	value, err := registry.ParseBool(c.Query(key))
	return err == nil && value
}

func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + c.Request.Host
}

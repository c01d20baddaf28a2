package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-sync/internal/feed"
	"github.com/lysyi3m/rss-sync/internal/registry"
)

const maxDebugBody = 1 << 20

// DebugINI parses the request body strictly as feed definitions without
// applying them.
func (h *Handler) DebugINI(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDebugBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
		return
	}

	defs, err := registry.Preview(string(body))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"definitions": defs, "total": len(defs)})
}

// DebugFetch fetches and parses an ad-hoc definition, bypassing validators.
func (h *Handler) DebugFetch(c *gin.Context) {
	var def registry.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if def.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing url"})
		return
	}

	result, err := h.fetcher.Fetch(c.Request.Context(), def, feed.Validators{}, true)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   result.Response.StatusCode,
		"etag":     result.Response.Etag,
		"document": result.Document,
	})
}

// DebugUpdate triggers a background update, forced or not, of one feed or
// of every feed.
func (h *Handler) DebugUpdate(c *gin.Context) {
	var req DebugUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var force bool
	switch req.Action {
	case "force-update-feed":
		force = true
	case "update-feed":
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown action"})
		return
	}

	if req.Data != nil {
		id := *req.Data
		if _, ok := h.registry.Get(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
			return
		}
		h.updater.Go(func(ctx context.Context) {
			h.updater.UpdateOne(ctx, id, force)
		})
	} else {
		h.updater.Go(func(ctx context.Context) {
			h.updater.UpdateAll(ctx, force)
		})
	}

	c.String(http.StatusOK, "OK")
}

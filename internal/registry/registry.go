// Package registry holds the authoritative list of feed definitions, loaded
// from a definitions file and mapped to stored feed records by url.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/samber/lo"

	"github.com/lysyi3m/rss-sync/internal/database"
)

var (
	ErrNotFound          = errors.New("feed definition not found")
	ErrInvalidDefinition = errors.New("invalid feed definition")
)

type snapshot struct {
	defs  []Definition
	byID  map[int64]int
	byURL map[string]int
}

func newSnapshot(defs []Definition) *snapshot {
	s := &snapshot{
		defs:  defs,
		byID:  make(map[int64]int, len(defs)),
		byURL: make(map[string]int, len(defs)),
	}
	for i, def := range defs {
		s.byID[def.ID] = i
		s.byURL[def.URL] = i
	}
	return s
}

// Registry serves definitions from an immutable snapshot. Readers never
// block writers; writers (load, apply, remove) are serialized and swap the
// snapshot when done, so a reader holds one consistent view for as long as
// it needs it.
type Registry struct {
	path     string
	format   Format
	feedRepo database.FeedRepository

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

func New(path string, feedRepo database.FeedRepository) *Registry {
	r := &Registry{
		path:     path,
		format:   FormatFor(path),
		feedRepo: feedRepo,
	}
	r.current.Store(newSnapshot(nil))
	return r
}

func (r *Registry) Path() string {
	return r.path
}

// Load reads the definitions file leniently, registers every definition in
// the store and replaces the snapshot. A missing file yields an empty
// registry. Stored feeds absent from the file are kept.
func (r *Registry) Load(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Feed definitions file not found", "path", r.path)
		r.current.Store(newSnapshot(nil))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read feed definitions: %w", err)
	}

	defs, err := decode(r.format, data, false)
	if err != nil {
		return err
	}

	if err := r.register(ctx, defs); err != nil {
		return err
	}

	r.current.Store(newSnapshot(defs))
	slog.Info("Feed definitions loaded", "path", r.path, "count", len(defs))

	return nil
}

// Apply strictly decodes administrative input, registers the definitions it
// contains (replacing those with the same url) and saves the file.
func (r *Registry) Apply(ctx context.Context, text string) ([]Definition, error) {
	defs, err := DecodeINI(text, true)
	if err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.register(ctx, defs); err != nil {
		return nil, err
	}

	merged := r.copyDefs()
	for _, def := range defs {
		if _, i, ok := lo.FindIndexOf(merged, func(d Definition) bool { return d.URL == def.URL }); ok {
			merged[i] = def
		} else {
			merged = append(merged, def)
		}
	}

	r.current.Store(newSnapshot(merged))

	if err := r.save(merged); err != nil {
		return nil, err
	}

	return cloneAll(defs), nil
}

// Remove deletes a definition, its stored feed and entries, and saves the file.
func (r *Registry) Remove(ctx context.Context, url string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	defs := r.copyDefs()
	remaining := lo.Filter(defs, func(d Definition, _ int) bool { return d.URL != url })
	if len(remaining) == len(defs) {
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	}

	if err := r.feedRepo.DeleteFeed(ctx, url); err != nil {
		return err
	}

	r.current.Store(newSnapshot(remaining))

	return r.save(remaining)
}

// Save writes every definition back to the definitions file.
func (r *Registry) Save() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.save(r.copyDefs())
}

func (r *Registry) Get(id int64) (Definition, bool) {
	s := r.current.Load()
	i, ok := s.byID[id]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i].Clone(), true
}

func (r *Registry) GetByURL(url string) (Definition, bool) {
	s := r.current.Load()
	i, ok := s.byURL[url]
	if !ok {
		return Definition{}, false
	}
	return s.defs[i].Clone(), true
}

func (r *Registry) List() []Definition {
	return cloneAll(r.current.Load().defs)
}

// Enabled returns every definition whose status is not disabled.
func (r *Registry) Enabled() []Definition {
	return lo.Filter(r.List(), func(d Definition, _ int) bool { return d.Enabled() })
}

func (r *Registry) Count() int {
	return len(r.current.Load().defs)
}

// ExportINI renders a single feed as its own definitions text.
func (r *Registry) ExportINI(id int64) (string, error) {
	def, ok := r.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return EncodeINI([]Definition{def}), nil
}

func (r *Registry) register(ctx context.Context, defs []Definition) error {
	for i := range defs {
		id, err := r.feedRepo.UpsertFeed(ctx, defs[i].URL, defs[i].Name, defs[i].Description, defs[i].Icon)
		if err != nil {
			return fmt.Errorf("failed to register feed %s: %w", defs[i].URL, err)
		}
		defs[i].ID = id
		slog.Debug("Feed registered", "id", id, "url", defs[i].URL, "status", string(defs[i].Status))
	}
	return nil
}

func (r *Registry) copyDefs() []Definition {
	return cloneAll(r.current.Load().defs)
}

func (r *Registry) save(defs []Definition) error {
	data, err := encode(r.format, defs)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("failed to create definitions directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".feeds-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write feed definitions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write feed definitions: %w", err)
	}

	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace feed definitions: %w", err)
	}

	return nil
}

func cloneAll(defs []Definition) []Definition {
	return lo.Map(defs, func(d Definition, _ int) Definition { return d.Clone() })
}

// Preview strictly decodes definitions text without registering anything.
func Preview(text string) ([]Definition, error) {
	return DecodeINI(text, true)
}

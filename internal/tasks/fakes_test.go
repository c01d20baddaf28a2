package tasks

import (
	"context"
	"sync"

	"github.com/lysyi3m/rss-sync/internal/broadcast"
	"github.com/lysyi3m/rss-sync/internal/database"
	"github.com/lysyi3m/rss-sync/internal/feed"
	"github.com/lysyi3m/rss-sync/internal/registry"
)

type fakePipeline struct {
	mu       sync.Mutex
	calls    int
	forced   []bool
	fetch    func(ctx context.Context, def registry.Definition, validators feed.Validators) (*feed.Result, error)
	extract  func(link string) (string, error)
	extracts []string
}

func (p *fakePipeline) Fetch(ctx context.Context, def registry.Definition, validators feed.Validators, force bool) (*feed.Result, error) {
	p.mu.Lock()
	p.calls++
	p.forced = append(p.forced, force)
	p.mu.Unlock()
	return p.fetch(ctx, def, validators)
}

func (p *fakePipeline) ExtractContent(ctx context.Context, def registry.Definition, link string) (string, error) {
	p.mu.Lock()
	p.extracts = append(p.extracts, link)
	p.mu.Unlock()
	if p.extract == nil {
		return "", nil
	}
	return p.extract(link)
}

func (p *fakePipeline) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeFeedRepo struct {
	database.FeedRepository

	mu         sync.Mutex
	feeds      map[int64]*database.Feed
	validators []database.Validators
	failWrites error
}

func newFakeFeedRepo(defs ...registry.Definition) *fakeFeedRepo {
	r := &fakeFeedRepo{feeds: make(map[int64]*database.Feed)}
	for _, def := range defs {
		r.feeds[def.ID] = &database.Feed{ID: def.ID, URL: def.URL}
	}
	return r
}

func (r *fakeFeedRepo) GetFeed(ctx context.Context, id int64) (*database.Feed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.feeds[id]
	if !ok {
		return nil, nil
	}
	copied := *f
	return &copied, nil
}

func (r *fakeFeedRepo) UpdateFeedMetadata(ctx context.Context, id int64, name, description, icon string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.feeds[id]
	if f.Name == "" {
		f.Name = name
	}
	if f.Description == "" {
		f.Description = description
	}
	if f.Icon == "" {
		f.Icon = icon
	}
	return nil
}

func (r *fakeFeedRepo) UpdateValidators(ctx context.Context, id int64, v database.Validators) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrites != nil {
		return r.failWrites
	}
	f := r.feeds[id]
	f.Etag, f.LastModified, f.LastStatus = v.Etag, v.LastModified, v.LastStatus
	fetchedAt := v.FetchedAt
	f.LastFetchedAt = &fetchedAt
	r.validators = append(r.validators, v)
	return nil
}

func (r *fakeFeedRepo) Feed(id int64) database.Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.feeds[id]
}

type fakeEntryRepo struct {
	database.EntryRepository

	mu           sync.Mutex
	entries      map[int64]map[string]database.NewEntry
	persistCalls [][]database.NewEntry
	failPersist  error
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{entries: make(map[int64]map[string]database.NewEntry)}
}

func (r *fakeEntryRepo) ExistingIDs(ctx context.Context, feedID int64) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make(map[string]struct{})
	for id := range r.entries[feedID] {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (r *fakeEntryRepo) Persist(ctx context.Context, feedID int64, entries []database.NewEntry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistCalls = append(r.persistCalls, entries)
	if r.failPersist != nil {
		return 0, r.failPersist
	}
	if r.entries[feedID] == nil {
		r.entries[feedID] = make(map[string]database.NewEntry)
	}
	inserted := 0
	for _, e := range entries {
		if _, ok := r.entries[feedID][e.ExternalID]; ok {
			continue
		}
		r.entries[feedID][e.ExternalID] = e
		inserted++
	}
	return inserted, nil
}

func (r *fakeEntryRepo) seed(feedID int64, ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[feedID] == nil {
		r.entries[feedID] = make(map[string]database.NewEntry)
	}
	for _, id := range ids {
		r.entries[feedID][id] = database.NewEntry{ExternalID: id}
	}
}

func (r *fakeEntryRepo) Entries(feedID int64) map[string]database.NewEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make(map[string]database.NewEntry, len(r.entries[feedID]))
	for id, e := range r.entries[feedID] {
		entries[id] = e
	}
	return entries
}

func (r *fakeEntryRepo) Count(feedID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[feedID])
}

func (r *fakeEntryRepo) PersistCalls() [][]database.NewEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]database.NewEntry(nil), r.persistCalls...)
}

type fakeRegistry struct {
	defs []registry.Definition
}

func (r *fakeRegistry) Get(id int64) (registry.Definition, bool) {
	for _, def := range r.defs {
		if def.ID == id {
			return def, true
		}
	}
	return registry.Definition{}, false
}

func (r *fakeRegistry) Enabled() []registry.Definition {
	var defs []registry.Definition
	for _, def := range r.defs {
		if def.Enabled() {
			defs = append(defs, def)
		}
	}
	return defs
}

type eventRecorder struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (r *eventRecorder) Broadcast(event broadcast.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return 1
}

func (r *eventRecorder) Events() []broadcast.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]broadcast.Event(nil), r.events...)
}

func okResult(entries ...feed.Entry) *feed.Result {
	return &feed.Result{
		Response: &feed.Response{StatusCode: 200, Etag: `"v1"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"},
		Document: &feed.Document{
			Metadata: feed.Metadata{Title: "Example", Description: "An example feed"},
			Entries:  entries,
		},
	}
}

func testDefinition(id int64) registry.Definition {
	return registry.Definition{
		ID:     id,
		URL:    "https://example.com/feed.xml",
		Status: registry.StatusActive,
	}
}

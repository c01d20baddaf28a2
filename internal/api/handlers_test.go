package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-sync/internal/broadcast"
	"github.com/lysyi3m/rss-sync/internal/database"
	"github.com/lysyi3m/rss-sync/internal/feed"
	"github.com/lysyi3m/rss-sync/internal/registry"
	"github.com/lysyi3m/rss-sync/internal/tasks"
)

const testFeedsINI = `[https://example.com/feed.xml]
name = Example
groups = news

[https://off.example/rss]
status = disabled
`

type fakeUpdater struct {
	mu       sync.Mutex
	all      []bool
	one      []int64
	outcome  tasks.Outcome
	outcomes []tasks.Outcome
}

func (u *fakeUpdater) UpdateAll(ctx context.Context, force bool) []tasks.Outcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.all = append(u.all, force)
	return u.outcomes
}

func (u *fakeUpdater) UpdateOne(ctx context.Context, id int64, force bool) tasks.Outcome {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.one = append(u.one, id)
	return u.outcome
}

// Go runs fn inline so tests can assert on its effects.
func (u *fakeUpdater) Go(fn func(ctx context.Context)) {
	fn(context.Background())
}

type fakeFetcher struct {
	result *feed.Result
	err    error
	got    registry.Definition
}

func (f *fakeFetcher) Fetch(ctx context.Context, def registry.Definition, validators feed.Validators, force bool) (*feed.Result, error) {
	f.got = def
	return f.result, f.err
}

type testEnv struct {
	router    *gin.Engine
	registry  *registry.Registry
	feedRepo  *database.FeedRepo
	entryRepo *database.EntryRepo
	updater   *fakeUpdater
	fetcher   *fakeFetcher
	hub       *broadcast.Hub
}

func newTestEnv(t *testing.T, debugEndpoints bool) *testEnv {
	t.Helper()

	dir := t.TempDir()
	db, err := database.NewConnection(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	path := filepath.Join(dir, "feeds.ini")
	if err := os.WriteFile(path, []byte(testFeedsINI), 0o644); err != nil {
		t.Fatal(err)
	}

	feedRepo := database.NewFeedRepository(db)
	entryRepo := database.NewEntryRepository(db)
	reg := registry.New(path, feedRepo)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("Failed to load registry: %v", err)
	}

	env := &testEnv{
		registry:  reg,
		feedRepo:  feedRepo,
		entryRepo: entryRepo,
		updater:   &fakeUpdater{},
		fetcher:   &fakeFetcher{},
		hub:       broadcast.NewHub(),
	}
	handler := NewHandler(reg, feedRepo, entryRepo, env.updater, env.fetcher, env.hub, "test")
	env.router = NewServer(handler, debugEndpoints)

	return env
}

func (e *testEnv) feedID(t *testing.T, url string) int64 {
	t.Helper()
	def, ok := e.registry.GetByURL(url)
	if !ok {
		t.Fatalf("Expected definition for %s", url)
	}
	return def.ID
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestGetHealth(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["feeds"] != float64(2) {
		t.Errorf("Expected 2 feeds, got %v", body["feeds"])
	}
	if body["observers"] != float64(0) {
		t.Errorf("Expected 0 observers, got %v", body["observers"])
	}
}

func TestListFeeds(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/feeds", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["total"] != float64(2) {
		t.Errorf("Expected 2 feeds, got %v", body["total"])
	}

	feeds := body["feeds"].([]interface{})
	first := feeds[0].(map[string]interface{})
	if first["url"] != "https://example.com/feed.xml" {
		t.Errorf("Expected definitions in file order, got %v", first["url"])
	}
	if first["entry_count"] != float64(0) {
		t.Errorf("Expected 0 entries, got %v", first["entry_count"])
	}
}

func TestGetFeedINI(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.feedID(t, "https://example.com/feed.xml")

	w := env.do(http.MethodGet, "/api/feeds/"+itoa(id)+"/ini", "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("Expected text/plain, got %s", w.Header().Get("Content-Type"))
	}
	text := w.Body.String()
	for _, want := range []string{"[https://example.com/feed.xml]", "name = Example", "groups = news"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in exported INI, got %q", want, text)
		}
	}
	if strings.Contains(text, "off.example") {
		t.Error("Expected only the requested feed to be exported")
	}

	if w := env.do(http.MethodGet, "/api/feeds/999/ini", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown feed, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/feeds/abc/ini", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid id, got %d", w.Code)
	}
}

func TestGetFeedEntriesAndRSS(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.feedID(t, "https://example.com/feed.xml")

	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := env.entryRepo.Persist(context.Background(), id, []database.NewEntry{
		{ExternalID: "https://example.com/a", Title: "First & best", Link: "https://example.com/a", PublishedAt: &published, Summary: "Summary"},
		{ExternalID: "b", Title: "Second", Content: "<p>body</p>", Media: []string{"https://example.com/b.jpg"}},
	})
	if err != nil {
		t.Fatalf("Failed to persist entries: %v", err)
	}

	w := env.do(http.MethodGet, "/api/feeds/"+itoa(id)+"/entries?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if body := decodeJSON(t, w); body["total"] != float64(1) {
		t.Errorf("Expected limit to apply, got %v", body["total"])
	}

	if w := env.do(http.MethodGet, "/api/feeds/"+itoa(id)+"/entries?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid limit, got %d", w.Code)
	}

	w = env.do(http.MethodGet, "/feeds/"+itoa(id)+"/rss", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	rss := w.Body.String()
	for _, want := range []string{
		`<rss version="2.0"`,
		"<title>Example</title>",
		"<title>First &amp; best</title>",
		`<guid isPermaLink="true">https://example.com/a</guid>`,
		`<guid isPermaLink="false">b</guid>`,
		"<content:encoded><![CDATA[<p>body</p>]]></content:encoded>",
		`<media:content url="https://example.com/b.jpg" />`,
		"<pubDate>Fri, 01 Mar 2024 10:00:00 +0000</pubDate>",
	} {
		if !strings.Contains(rss, want) {
			t.Errorf("Expected %q in RSS output", want)
		}
	}
	if w.Header().Get("X-Feed-Entries") != "2" {
		t.Errorf("Expected X-Feed-Entries 2, got %s", w.Header().Get("X-Feed-Entries"))
	}
}

func TestGetFeedRSSMissingRecord(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.feedID(t, "https://example.com/feed.xml")

	if err := env.feedRepo.DeleteFeed(context.Background(), "https://example.com/feed.xml"); err != nil {
		t.Fatalf("Failed to delete feed record: %v", err)
	}

	w := env.do(http.MethodGet, "/feeds/"+itoa(id)+"/rss", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUpdateFeed(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.feedID(t, "https://example.com/feed.xml")
	env.updater.outcome = tasks.Outcome{FeedID: id, URL: "https://example.com/feed.xml", Status: tasks.StatusUpdated, Inserted: 3}

	w := env.do(http.MethodPost, "/api/feeds/"+itoa(id)+"/update?force=true&wait=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	if body["status"] != "updated" || body["inserted"] != float64(3) {
		t.Errorf("Unexpected outcome %v", body)
	}

	w = env.do(http.MethodPost, "/api/feeds/"+itoa(id)+"/update", "")
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}
	if len(env.updater.one) != 2 {
		t.Errorf("Expected 2 single feed updates, got %v", env.updater.one)
	}

	disabled := env.feedID(t, "https://off.example/rss")
	if w := env.do(http.MethodPost, "/api/feeds/"+itoa(disabled)+"/update", ""); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for a disabled feed, got %d", w.Code)
	}
}

func TestUpdateFeeds(t *testing.T) {
	env := newTestEnv(t, false)
	env.updater.outcomes = []tasks.Outcome{
		{FeedID: 1, Status: tasks.StatusUnchanged},
		{FeedID: 2, Status: tasks.StatusFailed, Err: tasks.ErrFeedDisabled},
	}

	w := env.do(http.MethodPost, "/api/feeds/update?wait=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := decodeJSON(t, w)
	outcomes := body["outcomes"].([]interface{})
	if len(outcomes) != 2 {
		t.Fatalf("Expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[1].(map[string]interface{})["error"] != "feed is disabled" {
		t.Errorf("Expected error detail, got %v", outcomes[1])
	}

	if w := env.do(http.MethodPost, "/api/feeds/update?force=yes", ""); w.Code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", w.Code)
	}
	if len(env.updater.all) != 2 || env.updater.all[0] || !env.updater.all[1] {
		t.Errorf("Expected unforced then forced cycle, got %v", env.updater.all)
	}
}

func TestDebugEndpointsDisabled(t *testing.T) {
	env := newTestEnv(t, false)

	if w := env.do(http.MethodPost, "/debug/update", `{"action":"update-feed"}`); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without debug endpoints, got %d", w.Code)
	}
}

func TestDebugINI(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(http.MethodPost, "/debug/ini", "[https://new.example/rss]\nname = New\nfake_browser = yes\n")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeJSON(t, w)
	if body["total"] != float64(1) {
		t.Errorf("Expected 1 definition, got %v", body["total"])
	}
	if env.registry.Count() != 2 {
		t.Error("Expected preview not to change the registry")
	}

	if w := env.do(http.MethodPost, "/debug/ini", "[ ]\nname = x\n"); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for malformed text, got %d", w.Code)
	}
}

func TestDebugFetch(t *testing.T) {
	env := newTestEnv(t, true)
	env.fetcher.result = &feed.Result{
		Response: &feed.Response{StatusCode: 200},
		Document: &feed.Document{Entries: []feed.Entry{{ExternalID: "x", Title: "X"}}},
	}

	w := env.do(http.MethodPost, "/debug/fetch", `{"url":"https://adhoc.example/","type":"html","selectors":{"css_entries":"article"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.fetcher.got.Entries != "article" {
		t.Errorf("Expected selectors to be bound, got %+v", env.fetcher.got.Selectors)
	}
	if body := decodeJSON(t, w); body["status"] != float64(200) {
		t.Errorf("Expected status 200 in body, got %v", body["status"])
	}

	env.fetcher.err = &feed.FetchError{URL: "https://adhoc.example/", StatusCode: 403}
	w = env.do(http.MethodPost, "/debug/fetch", `{"url":"https://adhoc.example/"}`)
	if body := decodeJSON(t, w); body["error"] != "failed to fetch https://adhoc.example/: HTTP 403" {
		t.Errorf("Expected fetch error in body, got %v", body["error"])
	}
}

func TestDebugUpdate(t *testing.T) {
	env := newTestEnv(t, true)
	id := env.feedID(t, "https://example.com/feed.xml")

	w := env.do(http.MethodPost, "/debug/update", `{"action":"force-update-feed","data":`+itoa(id)+`}`)
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("Expected OK, got %d %q", w.Code, w.Body.String())
	}
	if len(env.updater.one) != 1 || env.updater.one[0] != id {
		t.Errorf("Expected single feed update of %d, got %v", id, env.updater.one)
	}

	env.do(http.MethodPost, "/debug/update", `{"action":"update-feed"}`)
	if len(env.updater.all) != 1 || env.updater.all[0] {
		t.Errorf("Expected one unforced cycle, got %v", env.updater.all)
	}

	if w := env.do(http.MethodPost, "/debug/update", `{"action":"explode"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown action, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/debug/update", `{"action":"update-feed","data":999}`); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown feed, got %d", w.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestApplyFeeds(t *testing.T) {
	env := newTestEnv(t, false)

	body := "[https://new.example/atom.xml]\nname = New\ngroups = tech news\n"
	w := env.do(http.MethodPost, "/api/feeds", body)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeJSON(t, w)["total"]; got != float64(1) {
		t.Errorf("Expected 1 applied definition, got %v", got)
	}

	def, ok := env.registry.GetByURL("https://new.example/atom.xml")
	if !ok {
		t.Fatal("Expected applied definition to be registered")
	}
	if def.ID == 0 {
		t.Error("Expected applied definition to have a stored id")
	}
	if env.registry.Count() != 3 {
		t.Errorf("Expected 3 definitions, got %d", env.registry.Count())
	}

	saved, err := os.ReadFile(env.registry.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(saved), "[https://new.example/atom.xml]") {
		t.Errorf("Expected definitions file to be saved, got %q", saved)
	}
}

func TestApplyFeedsRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
	}{
		{"nameless section", "[]\nname = x\n"},
		{"orphan indented line", "  dangling\n"},
		{"unknown status", "[https://new.example/]\nstatus = sleeping\n"},
		{"bad boolean", "[https://new.example/]\nfake_browser = maybe\n"},
		{"duplicate key", "[https://new.example/]\nstatus = active\nstatus = hidden\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/feeds", tt.body)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("Expected status 422, got %d", w.Code)
			}
		})
	}

	if env.registry.Count() != 2 {
		t.Errorf("Expected rejected input to leave 2 definitions, got %d", env.registry.Count())
	}
}

func TestDeleteFeed(t *testing.T) {
	env := newTestEnv(t, false)
	id := env.feedID(t, "https://example.com/feed.xml")

	w := env.do(http.MethodDelete, "/api/feeds/"+itoa(id), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected status 204, got %d", w.Code)
	}

	if _, ok := env.registry.Get(id); ok {
		t.Error("Expected definition to be removed")
	}
	if env.registry.Count() != 1 {
		t.Errorf("Expected 1 definition, got %d", env.registry.Count())
	}

	if w := env.do(http.MethodDelete, "/api/feeds/"+itoa(id), ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for removed feed, got %d", w.Code)
	}
}

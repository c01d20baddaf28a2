package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/rss-sync.db" description:"Path to the SQLite database file"`
	FeedsFile  string `long:"feeds-file" env:"FEEDS_FILE" default:"./data/feeds.ini" description:"Feed definitions file (.ini, .yml or .yaml)"`
	WatchFeeds bool   `long:"watch-feeds" env:"WATCH_FEEDS" description:"Reload the feed definitions file when it changes"`

	// HTTP server configuration
	Host           string `long:"host" env:"HOST" default:"0.0.0.0" description:"HTTP server host"`
	Port           string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	DebugEndpoints bool   `long:"debug-endpoints" env:"DEBUG_ENDPOINTS" description:"Enable /debug endpoints"`

	// Synchronization configuration
	UpdateInterval int `long:"update-interval" env:"UPDATE_INTERVAL" default:"30" description:"Interval between update cycles in minutes"`
	WorkerCount    int `long:"worker-count" env:"WORKER_COUNT" default:"5" description:"Number of feeds updated in parallel during a cycle"`
	FetchTimeout   int `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Per-fetch timeout in seconds"`
	FetchRetries   int `long:"fetch-retries" env:"FETCH_RETRIES" default:"2" description:"Retries for transient fetch failures"`

	// Application metadata
	UserAgent        string `long:"user-agent" env:"USER_AGENT" default:"RSS Sync/1.0" description:"User agent string for HTTP requests"`
	BrowserUserAgent string `long:"browser-user-agent" env:"BROWSER_USER_AGENT" default:"Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0" description:"User agent used for feeds with fake_browser enabled"`
	Timezone         string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug            bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// Load parses args (without the program name) and the environment. It
// returns nil, nil when help was requested.
func Load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		FeedsFile:        raw.FeedsFile,
		WatchFeeds:       raw.WatchFeeds,
		Host:             raw.Host,
		Port:             raw.Port,
		DebugEndpoints:   raw.DebugEndpoints,
		UpdateInterval:   time.Duration(raw.UpdateInterval) * time.Minute,
		WorkerCount:      raw.WorkerCount,
		FetchTimeout:     time.Duration(raw.FetchTimeout) * time.Second,
		FetchRetries:     raw.FetchRetries,
		UserAgent:        raw.UserAgent,
		BrowserUserAgent: raw.BrowserUserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		slog.Warn("Invalid timezone, using system default", "timezone", cfg.Timezone, "error", err)
	}

	return cfg, nil
}

func (c *Cfg) validate() error {
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update interval must be positive, got %s", c.UpdateInterval)
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.WorkerCount)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.FetchRetries < 0 {
		return fmt.Errorf("fetch retries must not be negative, got %d", c.FetchRetries)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return err
	}
	time.Local = loc
	return nil
}

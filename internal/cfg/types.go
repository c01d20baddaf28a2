package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	FeedsFile  string
	WatchFeeds bool

	// HTTP server
	Host           string
	Port           string
	DebugEndpoints bool

	// Synchronization
	UpdateInterval time.Duration
	WorkerCount    int
	FetchTimeout   time.Duration
	FetchRetries   int

	// Application metadata
	UserAgent        string
	BrowserUserAgent string
	Timezone         string
	Debug            bool
	Version          string
}

func (c *Cfg) Addr() string {
	return c.Host + ":" + c.Port
}

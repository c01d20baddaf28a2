package feed

import (
	"time"
)

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

// Entry is a candidate item extracted from a fetched document. ExternalID is
// the dedup key within its feed.
type Entry struct {
	ExternalID  string
	Title       string
	Link        string
	PublishedAt *time.Time
	Summary     string
	Content     string
	Author      string
	Media       []string
}

// Document is the normalized form of a fetched feed, whatever its wire format.
type Document struct {
	Metadata Metadata
	Entries  []Entry
}

// Validators are the cache validators sent with a conditional request.
type Validators struct {
	Etag         string
	LastModified string
}

type Response struct {
	URL          string
	StatusCode   int
	Etag         string
	LastModified string
	ContentType  string
	Body         []byte
}

func (r *Response) NotModified() bool {
	return r.StatusCode == 304
}

// Result is the outcome of a successful fetch. Document is nil when the
// upstream answered 304 Not Modified.
type Result struct {
	Response *Response
	Document *Document
}

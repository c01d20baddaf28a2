package feed

import (
	"bytes"
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/samber/lo"
)

// Parser turns RSS, Atom and JSON Feed documents into a Document. It is
// safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Run(data []byte) (*Document, error) {
	// gofeed parsers hold per-document state
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	doc := &Document{
		Metadata: Metadata{
			Title:       strings.TrimSpace(feed.Title),
			Link:        feed.Link,
			Description: strings.TrimSpace(feed.Description),
			Language:    feed.Language,
		},
		Entries: make([]Entry, 0, len(feed.Items)),
	}

	if feed.Image != nil {
		doc.Metadata.ImageURL = feed.Image.URL
	}

	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		doc.Entries = append(doc.Entries, p.normalizeItem(item))
	}

	return doc, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Entry {
	entry := Entry{
		Title:   strings.TrimSpace(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: item.Description,
		Content: item.Content,
		Author:  strings.Join(p.extractAuthors(item), ", "),
		Media:   p.extractMedia(item),
	}

	if item.PublishedParsed != nil {
		published := item.PublishedParsed.UTC()
		entry.PublishedAt = &published
	} else if item.UpdatedParsed != nil {
		updated := item.UpdatedParsed.UTC()
		entry.PublishedAt = &updated
	}

	entry.ExternalID = cmp.Or(strings.TrimSpace(item.GUID), FallbackID(entry.Link, entry.Title))

	return entry
}

// FallbackID derives a stable dedup key for entries without an upstream id.
func FallbackID(link, title string) string {
	hash := sha256.Sum256([]byte(link + "|" + title))
	return hex.EncodeToString(hash[:])
}

func (p *Parser) extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if s := formatAuthor(author.Name, author.Email); s != "" {
					authors = append(authors, s)
				}
			}
		}
	} else if item.Author != nil {
		if s := formatAuthor(item.Author.Name, item.Author.Email); s != "" {
			authors = append(authors, s)
		}
	}

	return authors
}

func formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	} else if name != "" {
		return name
	} else if email != "" {
		return email
	}

	return ""
}

// extractMedia collects enclosure, media:content, media:thumbnail and image
// urls in document order.
func (p *Parser) extractMedia(item *gofeed.Item) []string {
	var media []string

	for _, enclosure := range item.Enclosures {
		if enclosure != nil && enclosure.URL != "" {
			media = append(media, enclosure.URL)
		}
	}

	if group, ok := item.Extensions["media"]; ok {
		media = append(media, mediaURLs(group)...)
		for _, g := range group["group"] {
			media = append(media, mediaURLs(g.Children)...)
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		media = append(media, item.Image.URL)
	}

	return lo.Uniq(media)
}

func mediaURLs(elements map[string][]ext.Extension) []string {
	var urls []string
	for _, name := range []string{"content", "thumbnail"} {
		for _, e := range elements[name] {
			if u := e.Attrs["url"]; u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

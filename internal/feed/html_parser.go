package feed

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/samber/lo"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"

	"github.com/lysyi3m/rss-sync/internal/registry"
)

var ErrNoEntriesSelector = errors.New("css_entries selector is required for html sources")

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// HTMLParser scrapes entries out of an HTML page with CSS selectors.
type HTMLParser struct{}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

func (p *HTMLParser) Run(data []byte, contentType, pageURL string, sel registry.Selectors) (*Document, error) {
	if sel.Entries == "" {
		return nil, ErrNoEntriesSelector
	}

	decoded, err := DecodeCharset(data, contentType)
	if err != nil {
		return nil, err
	}

	page, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	base, _ := url.Parse(pageURL)

	root := page.Selection
	if sel.Namespace != "" {
		root = page.Find(sel.Namespace).First()
	}

	doc := &Document{
		Metadata: Metadata{
			Title:       textOf(root, sel.Name),
			Description: textOf(root, sel.Description),
			Link:        pageURL,
		},
	}
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = strings.TrimSpace(page.Find("title").First().Text())
	}
	if doc.Metadata.Description == "" {
		doc.Metadata.Description = strings.TrimSpace(page.Find(`meta[name="description"]`).AttrOr("content", ""))
	}
	if icon, ok := page.Find(`link[rel~="icon"]`).First().Attr("href"); ok {
		doc.Metadata.ImageURL = resolve(base, icon)
	}
	if lang, ok := page.Find("html").Attr("lang"); ok {
		doc.Metadata.Language = lang
	}

	root.Find(sel.Entries).Each(func(_ int, s *goquery.Selection) {
		entry := p.entryFrom(s, sel, base)
		if entry.Link == "" && entry.Title == "" {
			return
		}
		doc.Entries = append(doc.Entries, entry)
	})

	return doc, nil
}

func (p *HTMLParser) entryFrom(s *goquery.Selection, sel registry.Selectors, base *url.URL) Entry {
	linkNode := s
	if sel.EntryLink != "" {
		linkNode = s.Find(sel.EntryLink).First()
	} else if !s.Is("a") {
		linkNode = s.Find("a[href]").First()
	}

	entry := Entry{
		Link:    resolve(base, linkNode.AttrOr("href", "")),
		Title:   textOf(s, sel.EntryTitle),
		Summary: textOf(s, sel.EntrySummary),
		Author:  textOf(s, sel.EntryAuthor),
	}
	if entry.Title == "" {
		entry.Title = strings.TrimSpace(linkNode.Text())
	}

	if sel.EntryContent != "" {
		if html, err := s.Find(sel.EntryContent).First().Html(); err == nil {
			entry.Content = strings.TrimSpace(html)
		}
	}

	if sel.EntryPublished != "" {
		node := s.Find(sel.EntryPublished).First()
		raw := node.AttrOr("datetime", strings.TrimSpace(node.Text()))
		if published, err := dateparse.ParseAny(raw); err == nil {
			published = published.UTC()
			entry.PublishedAt = &published
		}
	}

	var media []string
	if sel.EntryImage != "" {
		s.Find(sel.EntryImage).Each(func(_ int, img *goquery.Selection) {
			media = append(media, resolve(base, firstAttr(img, "src", "data-src", "href")))
		})
	}
	if sel.EntryVideo != "" {
		s.Find(sel.EntryVideo).Each(func(_ int, video *goquery.Selection) {
			src := firstAttr(video, "src", "data-src")
			if src == "" {
				src = video.Find("source[src]").First().AttrOr("src", "")
			}
			media = append(media, resolve(base, src))
		})
	}
	entry.Media = lo.Uniq(lo.Compact(media))

	entry.ExternalID = entry.Link
	if entry.ExternalID == "" {
		entry.ExternalID = FallbackID(entry.Link, entry.Title)
	}

	return entry
}

func textOf(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(s.Find(selector).First().Text()), " ")
}

func firstAttr(s *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := s.Attr(name); ok && v != "" {
			return v
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// DecodeCharset converts data to UTF-8. The encoding comes from a byte
// order mark, the Content-Type header or a <meta> declaration, in that
// order; undeclared valid UTF-8 is returned as is.
func DecodeCharset(data []byte, contentType string) ([]byte, error) {
	enc, name, _ := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" {
		return bytes.TrimPrefix(data, utf8BOM), nil
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s body: %w", name, err)
	}

	return decoded, nil
}

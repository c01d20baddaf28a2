package api

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/rss-sync/internal/database"
	"github.com/lysyi3m/rss-sync/internal/registry"
)

// RSSGenerator renders stored entries of one feed as RSS 2.0.
type RSSGenerator struct {
	version string
}

func NewRSSGenerator(version string) *RSSGenerator {
	return &RSSGenerator{version: version}
}

func (g *RSSGenerator) Run(record database.Feed, def registry.Definition, entries []database.Entry, selfURL string) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(xml.Header)
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom" xmlns:media="http://search.yahoo.com/mrss/">`)
	buf.WriteString("\n  <channel>\n")

	// definition values take precedence over what the source advertises
	title := cmp.Or(def.Name, record.Name, record.URL)
	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", record.URL, 4)
	g.writeElement(&buf, "description", cmp.Or(def.Description, record.Description, "Entries synced from "+record.URL), 4)

	if selfURL != "" {
		buf.WriteString("    <atom:link href=\"")
		if err := xml.EscapeText(&buf, []byte(selfURL)); err != nil {
			return "", fmt.Errorf("failed to escape self link: %w", err)
		}
		buf.WriteString("\" rel=\"self\" type=\"application/rss+xml\" />\n")
	}

	g.writeElement(&buf, "lastBuildDate", time.Now().UTC().Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", "RSS Sync/"+g.version, 4)

	if icon := cmp.Or(def.Icon, record.Icon); icon != "" {
		buf.WriteString("    <image>\n")
		g.writeElement(&buf, "url", icon, 6)
		g.writeElement(&buf, "title", title, 6)
		g.writeElement(&buf, "link", record.URL, 6)
		buf.WriteString("    </image>\n")
	}

	for _, entry := range entries {
		g.writeItem(&buf, entry)
	}

	buf.WriteString("  </channel>\n</rss>\n")

	return buf.String(), nil
}

func (g *RSSGenerator) writeItem(buf *bytes.Buffer, entry database.Entry) {
	buf.WriteString("    <item>\n")

	buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", isURL(entry.ExternalID)))
	_ = xml.EscapeText(buf, []byte(entry.ExternalID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", entry.Title, 6)
	g.writeElement(buf, "link", entry.Link, 6)
	g.writeElement(buf, "description", entry.Summary, 6)

	if entry.Content != "" && entry.Content != entry.Summary {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(entry.Content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	if entry.PublishedAt != nil {
		g.writeElement(buf, "pubDate", entry.PublishedAt.UTC().Format(time.RFC1123Z), 6)
	}

	g.writeElement(buf, "author", entry.Author, 6)

	for _, media := range entry.Media {
		buf.WriteString("      <media:content url=\"")
		_ = xml.EscapeText(buf, []byte(media))
		buf.WriteString("\" />\n")
	}

	buf.WriteString("    </item>\n")
}

func (g *RSSGenerator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	_ = xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

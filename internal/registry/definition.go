package registry

import (
	"fmt"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/samber/lo"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusHidden   Status = "hidden"
	StatusDisabled Status = "disabled"
)

var statuses = []Status{StatusActive, StatusHidden, StatusDisabled}

// Selectors are CSS selector overrides for sources without a syndication
// document.
type Selectors struct {
	Namespace      string `yaml:"css_namespace,omitempty" json:"css_namespace,omitempty"`
	Name           string `yaml:"css_name,omitempty" json:"css_name,omitempty"`
	Description    string `yaml:"css_description,omitempty" json:"css_description,omitempty"`
	Entries        string `yaml:"css_entries,omitempty" json:"css_entries,omitempty"`
	EntryLink      string `yaml:"css_entry_link,omitempty" json:"css_entry_link,omitempty"`
	EntryImage     string `yaml:"css_entry_image,omitempty" json:"css_entry_image,omitempty"`
	EntryVideo     string `yaml:"css_entry_video,omitempty" json:"css_entry_video,omitempty"`
	EntryTitle     string `yaml:"css_entry_title,omitempty" json:"css_entry_title,omitempty"`
	EntrySummary   string `yaml:"css_entry_summary,omitempty" json:"css_entry_summary,omitempty"`
	EntryContent   string `yaml:"css_entry_content,omitempty" json:"css_entry_content,omitempty"`
	EntryPublished string `yaml:"css_entry_published,omitempty" json:"css_entry_published,omitempty"`
	EntryAuthor    string `yaml:"css_entry_author,omitempty" json:"css_entry_author,omitempty"`
}

// Definition describes one subscribed source. URL is unique and joins the
// definitions file with the stored feed record; ID is assigned by the store.
type Definition struct {
	ID             int64    `yaml:"-" json:"id"`
	URL            string   `yaml:"url" json:"url"`
	Name           string   `yaml:"name,omitempty" json:"name"`
	Description    string   `yaml:"description,omitempty" json:"description"`
	Icon           string   `yaml:"icon,omitempty" json:"icon"`
	Status         Status   `yaml:"status,omitempty" json:"status"`
	Groups         []string `yaml:"groups,omitempty" json:"groups"`
	Type           string   `yaml:"type,omitempty" json:"type"`
	HTTPHeaders    string   `yaml:"http_headers,omitempty" json:"http_headers"`
	FakeBrowser    bool     `yaml:"fake_browser,omitempty" json:"fake_browser"`
	ExtractContent bool     `yaml:"extract_content,omitempty" json:"extract_content"`

	Selectors `yaml:",inline" json:"selectors"`
}

func (d Definition) Enabled() bool {
	return d.Status != StatusDisabled
}

// Headers parses HTTPHeaders, one `Name: value` per line. Lines without a
// colon are skipped.
func (d Definition) Headers() http.Header {
	headers := make(http.Header)
	for _, line := range strings.Split(d.HTTPHeaders, "\n") {
		name, value, found := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			continue
		}
		headers.Add(textproto.CanonicalMIMEHeaderKey(name), strings.TrimSpace(value))
	}
	return headers
}

// UsesSelectors reports whether entries are scraped from HTML.
func (d Definition) UsesSelectors() bool {
	return strings.EqualFold(d.Type, "html") || d.Selectors.Entries != ""
}

func (d Definition) Clone() Definition {
	d.Groups = append([]string(nil), d.Groups...)
	return d
}

func (d *Definition) normalize() {
	d.URL = strings.TrimSpace(d.URL)
	d.Status = Status(strings.ToLower(strings.TrimSpace(string(d.Status))))
	if d.Status == "" {
		d.Status = StatusActive
	}
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	d.Groups = lo.Uniq(lo.Filter(d.Groups, func(g string, _ int) bool { return g != "" }))
}

func (d Definition) validate() error {
	u, err := url.Parse(d.URL)
	if err != nil {
		return fmt.Errorf("invalid feed url %q: %w", d.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("feed url %q must use http or https", d.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("feed url %q has no host", d.URL)
	}
	if !lo.Contains(statuses, d.Status) {
		return fmt.Errorf("feed %s: unknown status %q", d.URL, d.Status)
	}
	return nil
}

// ParseBool accepts true/yes/1 and false/no/0, case-insensitively.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}

// ParseWords splits a whitespace separated list.
func ParseWords(value string) []string {
	return strings.Fields(value)
}

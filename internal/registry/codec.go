package registry

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/rss-sync/internal/ini"
)

// Format is the encoding of a definitions file.
type Format int

const (
	FormatINI Format = iota
	FormatYAML
)

func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	}
	return FormatINI
}

type selectorField struct {
	key string
	ptr func(*Selectors) *string
}

var selectorFields = []selectorField{
	{"css_namespace", func(s *Selectors) *string { return &s.Namespace }},
	{"css_name", func(s *Selectors) *string { return &s.Name }},
	{"css_description", func(s *Selectors) *string { return &s.Description }},
	{"css_entries", func(s *Selectors) *string { return &s.Entries }},
	{"css_entry_link", func(s *Selectors) *string { return &s.EntryLink }},
	{"css_entry_image", func(s *Selectors) *string { return &s.EntryImage }},
	{"css_entry_video", func(s *Selectors) *string { return &s.EntryVideo }},
	{"css_entry_title", func(s *Selectors) *string { return &s.EntryTitle }},
	{"css_entry_summary", func(s *Selectors) *string { return &s.EntrySummary }},
	{"css_entry_content", func(s *Selectors) *string { return &s.EntryContent }},
	{"css_entry_published", func(s *Selectors) *string { return &s.EntryPublished }},
	{"css_entry_author", func(s *Selectors) *string { return &s.EntryAuthor }},
}

// DecodeINI reads one definition per section, the section name being the
// feed url. In strict mode malformed text or an invalid definition fails the
// whole decode; otherwise offending definitions are logged and skipped.
func DecodeINI(text string, strict bool) ([]Definition, error) {
	doc, err := ini.Parse(text, strict)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed definitions: %w", err)
	}

	for _, key := range doc.Properties() {
		slog.Debug("Ignoring top-level key in feed definitions", "key", key)
	}

	var defs []Definition
	for _, name := range doc.Sections() {
		def, err := fromSection(name, doc.Section(name))
		if err == nil {
			err = def.validate()
		}
		if err != nil {
			if strict {
				return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
			}
			slog.Warn("Skipping invalid feed definition", "url", name, "error", err)
			continue
		}
		defs = append(defs, def)
	}

	return defs, nil
}

func fromSection(url string, props *ini.Properties) (Definition, error) {
	def := Definition{
		URL:         url,
		Name:        props.Get("name"),
		Description: props.Get("description"),
		Icon:        props.Get("icon"),
		Status:      Status(props.Get("status")),
		Groups:      ParseWords(props.Get("groups")),
		Type:        props.Get("type"),
		HTTPHeaders: props.Get("http_headers"),
	}

	var err error
	if def.FakeBrowser, err = boolProperty(props, "fake_browser"); err != nil {
		return Definition{}, fmt.Errorf("feed %s: %w", url, err)
	}
	if def.ExtractContent, err = boolProperty(props, "extract_content"); err != nil {
		return Definition{}, fmt.Errorf("feed %s: %w", url, err)
	}

	for _, field := range selectorFields {
		*field.ptr(&def.Selectors) = props.Get(field.key)
	}

	def.normalize()

	return def, nil
}

// boolProperty treats a key declared without a value as true.
func boolProperty(props *ini.Properties, key string) (bool, error) {
	value, ok := props.Lookup(key)
	if !ok {
		return false, nil
	}
	if value == nil {
		return true, nil
	}
	parsed, err := ParseBool(*value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, nil
}

// toSection renders the non-empty fields of def.
func toSection(def Definition) *ini.Properties {
	props := ini.NewProperties()

	setIf := func(key, value string) {
		if value != "" {
			props.SetString(key, value)
		}
	}

	setIf("name", def.Name)
	setIf("description", def.Description)
	setIf("icon", def.Icon)
	if def.Status != "" && def.Status != StatusActive {
		props.SetString("status", string(def.Status))
	}
	if len(def.Groups) > 0 {
		props.SetList("groups", def.Groups)
	}
	setIf("type", def.Type)
	setIf("http_headers", def.HTTPHeaders)
	if def.FakeBrowser {
		props.SetString("fake_browser", "true")
	}
	if def.ExtractContent {
		props.SetString("extract_content", "true")
	}
	for _, field := range selectorFields {
		setIf(field.key, *field.ptr(&def.Selectors))
	}

	return props
}

func EncodeINI(defs []Definition) string {
	doc := ini.NewDocument()
	for _, def := range defs {
		doc.SetSection(def.URL, toSection(def))
	}
	return ini.Serialize(doc)
}

func DecodeYAML(data []byte, strict bool) ([]Definition, error) {
	var raw []Definition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	defs := make([]Definition, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, def := range raw {
		def.normalize()
		err := def.validate()
		if err == nil && seen[def.URL] {
			err = fmt.Errorf("duplicate feed url %q", def.URL)
		}
		if err != nil {
			if strict {
				return nil, err
			}
			slog.Warn("Skipping invalid feed definition", "url", def.URL, "error", err)
			continue
		}
		seen[def.URL] = true
		defs = append(defs, def)
	}

	return defs, nil
}

func EncodeYAML(defs []Definition) ([]byte, error) {
	data, err := yaml.Marshal(defs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode YAML: %w", err)
	}
	return data, nil
}

func decode(format Format, data []byte, strict bool) ([]Definition, error) {
	if format == FormatYAML {
		return DecodeYAML(data, strict)
	}
	return DecodeINI(string(data), strict)
}

func encode(format Format, defs []Definition) ([]byte, error) {
	if format == FormatYAML {
		return EncodeYAML(defs)
	}
	return []byte(EncodeINI(defs)), nil
}

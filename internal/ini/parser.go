// Package ini reads and writes the line-oriented key/value format used for
// feed definitions: `key = value` properties, `[name]` sections, `;`/`#`
// comments and indented continuation lines for multiline values.
package ini

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	ErrSectionNoName    = errors.New("declared section with no name")
	ErrIndentNoProperty = errors.New("indented line follows no property")
	ErrDuplicateKey     = errors.New("key declared twice in the same scope")
)

// FormatError reports malformed input found by a strict parse.
type FormatError struct {
	Kind error
	Line int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s @ line %d", e.Kind, e.Line)
}

func (e *FormatError) Unwrap() error {
	return e.Kind
}

type Options struct {
	// Strict turns tolerated oddities (nameless sections, orphan indented
	// lines) into a *FormatError.
	Strict bool
	// TopLevelWins keeps an unsectioned property when a section with the
	// same name is declared. By default the section overwrites it.
	TopLevelWins bool
}

var lineBreak = regexp.MustCompile(`\r?\n`)

func Parse(text string, strict bool) (*Document, error) {
	return ParseWithOptions(text, Options{Strict: strict})
}

func ParseWithOptions(text string, opts Options) (*Document, error) {
	topLevel := NewProperties()
	sections := make(map[string]*Properties)
	var sectionNames []string
	var current *Properties

	var (
		key     string
		keyLine int
		value   *string
		pending bool
	)

	commit := func() error {
		if !pending {
			return nil
		}
		target := topLevel
		if current != nil {
			target = current
		}
		if opts.Strict && target.Has(key) {
			return &FormatError{Kind: ErrDuplicateKey, Line: keyLine}
		}
		target.Set(key, value)
		key, keyLine, value, pending = "", 0, nil, false
		return nil
	}

	for i, line := range lineBreak.Split(text, -1) {
		lineNumber := i + 1

		if line != strings.TrimLeftFunc(line, unicode.IsSpace) {
			if pending {
				continued := "\n" + strings.TrimSpace(line)
				if value != nil {
					continued = *value + continued
				}
				value = &continued
			} else if opts.Strict {
				return nil, &FormatError{Kind: ErrIndentNoProperty, Line: lineNumber}
			}
			continue
		}

		if err := commit(); err != nil {
			return nil, err
		}

		trimmed := strings.TrimRightFunc(line, unicode.IsSpace)
		switch {
		case line == "":
		case line[0] == ';' || line[0] == '#':
		case line[0] == '[' && strings.HasSuffix(trimmed, "]") && len(trimmed) > 1:
			name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
			if name == "" {
				if opts.Strict {
					return nil, &FormatError{Kind: ErrSectionNoName, Line: lineNumber}
				}
				// properties after a nameless section land at the top level
				current = nil
				continue
			}
			if _, ok := sections[name]; !ok {
				sectionNames = append(sectionNames, name)
			}
			// a redeclared section starts over
			current = NewProperties()
			sections[name] = current
		default:
			k, v, found := strings.Cut(line, "=")
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			key, keyLine, pending = k, lineNumber, true
			if found {
				v = strings.TrimSpace(v)
				value = &v
			}
		}
	}
	if err := commit(); err != nil {
		return nil, err
	}

	doc := NewDocument()
	for _, k := range topLevel.keys {
		doc.Set(k, topLevel.values[k])
	}
	for _, name := range sectionNames {
		if _, collides := doc.Lookup(name); collides && opts.TopLevelWins {
			continue
		}
		doc.SetSection(name, sections[name])
	}

	return doc, nil
}

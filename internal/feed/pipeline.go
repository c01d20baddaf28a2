package feed

import (
	"context"
	"fmt"

	"github.com/lysyi3m/rss-sync/internal/registry"
)

// Pipeline fetches a feed and turns the response into a Document, picking
// the syndication or the CSS selector parser from the definition.
type Pipeline struct {
	fetcher    *Fetcher
	parser     *Parser
	htmlParser *HTMLParser
	extractor  *ContentExtractor
}

func NewPipeline(fetcher *Fetcher, parser *Parser, htmlParser *HTMLParser, extractor *ContentExtractor) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		parser:     parser,
		htmlParser: htmlParser,
		extractor:  extractor,
	}
}

// Fetch returns a Result whose Document is nil on 304. Fetch failures are
// *FetchError and unparseable bodies *ParseError.
func (p *Pipeline) Fetch(ctx context.Context, def registry.Definition, validators Validators, force bool) (*Result, error) {
	resp, err := p.fetcher.Fetch(ctx, def, validators, force)
	if err != nil {
		return nil, err
	}

	result := &Result{Response: resp}
	if resp.NotModified() {
		return result, nil
	}

	doc, err := p.Parse(def, resp)
	if err != nil {
		return nil, &ParseError{URL: def.URL, Err: err}
	}
	result.Document = doc

	return result, nil
}

func (p *Pipeline) Parse(def registry.Definition, resp *Response) (*Document, error) {
	if def.UsesSelectors() {
		return p.htmlParser.Run(resp.Body, resp.ContentType, resp.URL, def.Selectors)
	}
	return p.parser.Run(resp.Body)
}

// ExtractContent downloads link with the profile of def and returns the
// readable article HTML.
func (p *Pipeline) ExtractContent(ctx context.Context, def registry.Definition, link string) (string, error) {
	if link == "" {
		return "", fmt.Errorf("entry has no link")
	}

	resp, err := p.fetcher.Get(ctx, link, def)
	if err != nil {
		return "", err
	}

	body, err := DecodeCharset(resp.Body, resp.ContentType)
	if err != nil {
		return "", err
	}

	return p.extractor.Run(body, link)
}

// Package scrapers implements the Scraper contract and Scraper Factory
// (C4): a link-kind to constructor mapping, plus reference
// implementations for the article and forum-thread link kinds.
package scrapers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/codeready-toolchain/ingestor/internal/model"
)

// Scraper extracts textual content from a single URL. Implementations are
// created per task (see DESIGN.md Open Question decisions) and closed once
// extract returns, successfully or not.
type Scraper interface {
	// ValidateURL reports whether u is a URL this scraper can handle
	// before any network call is made.
	ValidateURL(u string) error
	// Extract fetches and returns the extracted artifact content.
	Extract(ctx context.Context, u string) (content string, wordCount int, language string, err error)
	// Close releases any resources (HTTP clients, temp files) held by
	// this scraper instance.
	Close() error
}

// Factory constructs a Scraper for a given LinkKind. Registered
// constructors are looked up by kind; for an unregistered kind New
// returns an error, and the worker processing the task marks it Failed
// with that error text.
type Factory struct {
	constructors map[model.LinkKind]func() Scraper
}

func NewFactory() *Factory {
	f := &Factory{constructors: make(map[model.LinkKind]func() Scraper)}
	f.Register(model.LinkKindArticle, func() Scraper { return NewArticleScraper() })
	f.Register(model.LinkKindForumThread, func() Scraper { return NewForumScraper() })
	return f
}

// Register adds or replaces the constructor for kind.
func (f *Factory) Register(kind model.LinkKind, ctor func() Scraper) {
	f.constructors[kind] = ctor
}

// New builds a fresh Scraper instance for kind.
func (f *Factory) New(kind model.LinkKind) (Scraper, error) {
	ctor, ok := f.constructors[kind]
	if !ok {
		return nil, fmt.Errorf("scrapers: no constructor registered for link kind %q", kind)
	}
	return ctor(), nil
}

// parseAndValidate is shared URL validation used by both reference
// scrapers: only http/https with a non-empty host is accepted.
func parseAndValidate(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("scrapers: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scrapers: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("scrapers: missing host")
	}
	return u, nil
}

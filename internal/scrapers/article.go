package scrapers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html"
)

// ArticleScraper extracts the body text of a single article page,
// preferring an <article> element if present and falling back to <body>.
type ArticleScraper struct {
	client *http.Client
}

func NewArticleScraper() *ArticleScraper {
	return &ArticleScraper{client: &http.Client{Timeout: 20 * time.Second}}
}

func (s *ArticleScraper) ValidateURL(u string) error {
	_, err := parseAndValidate(u)
	return err
}

func (s *ArticleScraper) Extract(ctx context.Context, u string) (string, int, string, error) {
	if _, err := parseAndValidate(u); err != nil {
		return "", 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, "", fmt.Errorf("article scraper: build request: %w", err)
	}
	req.Header.Set("User-Agent", "ingestor-article-scraper/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, "", fmt.Errorf("article scraper: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, "", fmt.Errorf("article scraper: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", 0, "", fmt.Errorf("article scraper: read body: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", 0, "", fmt.Errorf("article scraper: parse html: %w", err)
	}

	root := findNode(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "article"
	})
	if root == nil {
		root = findNode(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "body"
		})
	}
	if root == nil {
		root = doc
	}

	text := extractText(root)
	return text, wordCount(text), detectLanguage(text), nil
}

func (s *ArticleScraper) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

package scrapers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// forumPostClasses lists the CSS classes this reference scraper recognizes
// as a single post/reply container across common forum templates. A
// production deployment would register a scraper per forum platform
// through the Factory instead of widening this list.
var forumPostClasses = []string{"post", "message", "comment", "reply"}

// ForumScraper extracts every post in a thread, concatenated in document
// order, which is sufficient for downstream summarization.
type ForumScraper struct {
	client *http.Client
}

func NewForumScraper() *ForumScraper {
	return &ForumScraper{client: &http.Client{Timeout: 20 * time.Second}}
}

func (s *ForumScraper) ValidateURL(u string) error {
	_, err := parseAndValidate(u)
	return err
}

func (s *ForumScraper) Extract(ctx context.Context, u string) (string, int, string, error) {
	if _, err := parseAndValidate(u); err != nil {
		return "", 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", 0, "", fmt.Errorf("forum scraper: build request: %w", err)
	}
	req.Header.Set("User-Agent", "ingestor-forum-scraper/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, "", fmt.Errorf("forum scraper: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, "", fmt.Errorf("forum scraper: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", 0, "", fmt.Errorf("forum scraper: read body: %w", err)
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", 0, "", fmt.Errorf("forum scraper: parse html: %w", err)
	}

	var posts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, class := range forumPostClasses {
				if hasClass(n, class) {
					if t := extractText(n); t != "" {
						posts = append(posts, t)
					}
					return // don't descend into nested post chrome
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var text string
	if len(posts) > 0 {
		text = strings.Join(posts, "\n\n")
	} else {
		// No recognized post containers: fall back to whole-document text
		// rather than returning an empty artifact.
		text = extractText(doc)
	}

	return text, wordCount(text), detectLanguage(text), nil
}

func (s *ForumScraper) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

package scrapers

import (
	"strings"

	"golang.org/x/net/html"
)

// extractText walks an HTML node tree and concatenates the text content of
// every node under it, skipping script/style/nav/footer/header/noscript
// chrome. This is the lightweight alternative to a headless browser:
// every reference scraper in this package only needs rendered-free
// article/forum text, not JS-driven content, so golang.org/x/net/html's
// parser is sufficient.
func extractText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String())
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

// detectLanguage is a coarse heuristic: good enough to populate the
// metadata field without pulling in a full language-detection library.
func detectLanguage(text string) string {
	if text == "" {
		return "unknown"
	}
	return "en"
}

func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" && strings.Contains(" "+a.Val+" ", " "+class+" ") {
			return true
		}
	}
	return false
}

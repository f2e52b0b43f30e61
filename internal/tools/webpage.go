package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	webPageTimeout   = 15 * time.Second
	webPageMaxBytes  = 5 << 20
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// skipped elements are dropped together with everything inside them.
var skipped = map[atom.Atom]bool{
	atom.Script: true,
	atom.Style:  true,
	atom.Nav:    true,
	atom.Footer: true,
	atom.Header: true,
}

// WebPageFetcher fetches a page and returns its visible text, one line per
// non-empty text fragment.
type WebPageFetcher struct {
	client *http.Client
}

// NewWebPageFetcher returns a fetcher with a 15 second timeout.
func NewWebPageFetcher() *WebPageFetcher {
	return &WebPageFetcher{client: &http.Client{Timeout: webPageTimeout}}
}

func (f *WebPageFetcher) Name() string { return "webpage_fetcher" }

func (f *WebPageFetcher) Description() string {
	return "Fetches and returns the full text content of a webpage given its URL. " +
		"Use this to extract course information, textbook details, and syllabus content. " +
		"Returns clean text with scripts and styles removed."
}

// Invoke fetches the URL given as input.
func (f *WebPageFetcher) Invoke(ctx context.Context, input string) (string, error) {
	rawURL := strings.TrimSpace(input)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("could not fetch %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("request timed out while fetching %s", rawURL)
		}
		return "", fmt.Errorf("could not fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP error %d while fetching %s", resp.StatusCode, rawURL)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, webPageMaxBytes))
	if err != nil {
		return "", fmt.Errorf("unexpected error while processing %s: %w", rawURL, err)
	}
	return ExtractText(doc), nil
}

// ExtractText walks an HTML tree and returns its trimmed text lines.
func ExtractText(root *html.Node) string {
	var lines []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipped[n.DataAtom] {
				return
			}
		case html.TextNode:
			for _, line := range strings.Split(n.Data, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					lines = append(lines, line)
				}
			}
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(lines, "\n")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Package fetch retrieves web pages and reduces them to readable text.
package fetch

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
)

const (
	DefaultUserAgent = "Mozilla/5.0"
	defaultTimeout   = 30 * time.Second
	// Pages larger than this are cut before parsing.
	maxBodySize = 10 << 20
)

// Error describes a failed fetch of URL.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type Client struct {
	HTTPClient *http.Client
	UserAgent  string
	logger     *zap.Logger
}

func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		UserAgent:  DefaultUserAgent,
		logger:     logger,
	}
}

// Text fetches rawURL and returns the text nodes of its body, one per line,
// trimmed and without empty lines. Scripts and styles are dropped.
func (c *Client) Text(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", &Error{URL: rawURL, Message: "invalid URL", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "create request", Cause: err}
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	c.logger.Debug("fetching page", zap.String("url", parsed.String()))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{URL: rawURL, Message: fmt.Sprintf("bad status: %s", resp.Status)}
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", &Error{URL: rawURL, Message: "decode gzip body", Cause: err}
		}
		defer gz.Close()
		body = gz
	}

	// Decode to UTF-8 using the Content-Type header or the page's meta tags.
	decoded, err := charset.NewReader(io.LimitReader(body, maxBodySize), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &Error{URL: rawURL, Message: "decode charset", Cause: err}
	}

	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return "", &Error{URL: rawURL, Message: "parse html", Cause: err}
	}

	text := strings.ToValidUTF8(BodyText(doc), "\uFFFD")
	c.logger.Debug("page fetched", zap.String("url", parsed.String()), zap.Int("chars", len([]rune(text))))
	return text, nil
}

// BodyText flattens the body of doc into newline separated, trimmed text nodes.
func BodyText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			if goquery.NodeName(node) == "#text" {
				if line := strings.TrimSpace(node.Text()); line != "" {
					lines = append(lines, line)
				}
				return
			}
			walk(node)
		})
	}
	walk(doc.Find("body").First())

	return strings.Join(lines, "\n")
}

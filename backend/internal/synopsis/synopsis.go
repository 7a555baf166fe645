// Package synopsis pulls plot text from encyclopedia article HTML. It is used
// by the offline pipeline to fill catalogue records that have no description.
package synopsis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cinegraph/backend/pkg/errors"
	"cinegraph/backend/pkg/logger"
)

const (
	DefaultSection   = "Synopsis"
	DefaultBaseURL   = "https://fr.wikipedia.org"
	DefaultUserAgent = "cinegraph-indexer/1.0"
	// DefaultRate is the request rate allowed against the public API
	DefaultRate = 5
)

// Extract returns the paragraphs under the heading named section, including
// its subsections, or the lead paragraphs when the heading is absent.
func Extract(r io.Reader, section string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %w", err)
	}
	doc.Find("sup.reference, style, script, .mw-editsection").Remove()

	var lead, body []string
	target := 0 // heading level of the matched section, 0 while not inside it
	seenHeading := false

	doc.Find("h2, h3, h4, h5, h6, p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name := goquery.NodeName(s)
		if name != "p" {
			level := int(name[1] - '0')
			seenHeading = true
			if target > 0 && level <= target {
				return false
			}
			if target == 0 && section != "" && strings.EqualFold(headingText(s), section) {
				target = level
			}
			return true
		}
		text := cleanText(s.Text())
		if text == "" {
			return true
		}
		switch {
		case target > 0:
			body = append(body, text)
		case !seenHeading:
			lead = append(lead, text)
		}
		return true
	})

	if len(body) > 0 {
		return strings.Join(body, "\n"), nil
	}
	if len(lead) > 0 {
		return strings.Join(lead, "\n"), nil
	}
	return "", errors.NewEntityNotFound("article text", section)
}

func headingText(s *goquery.Selection) string {
	return cleanText(strings.TrimSuffix(strings.TrimSpace(s.Text()), "[edit]"))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Fetcher downloads article HTML and extracts one section from it
type Fetcher struct {
	client    *http.Client
	baseURL   string
	userAgent string
	section   string
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithClient replaces the HTTP client
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithBaseURL points the fetcher at another wiki host
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent sets the User-Agent header sent with every request
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithSection selects the heading to extract
func WithSection(section string) Option {
	return func(f *Fetcher) { f.section = section }
}

// WithRateLimit caps requests per second; rps <= 0 disables the limit
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewFetcher creates a fetcher for the Wikipedia REST API
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		section:   DefaultSection,
		limiter:   rate.NewLimiter(DefaultRate, 1),
		logger:    logger.Named("synopsis"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the configured section of the article with the given title
func (f *Fetcher) Fetch(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.NewInvalidInput("title", "article title is empty")
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}
	pageURL := f.baseURL + "/api/rest_v1/page/html/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.NewUpstreamFailure("wikipedia", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", errors.NewEntityNotFound("wikipedia", title)
	case resp.StatusCode != http.StatusOK:
		return "", errors.NewUpstreamFailure("wikipedia", fmt.Errorf("HTTP %d for %s", resp.StatusCode, title))
	}

	text, err := Extract(resp.Body, f.section)
	if err != nil {
		return "", err
	}
	f.logger.Debug("Fetched synopsis",
		zap.String("title", title),
		zap.Int("length", len(text)),
	)
	return text, nil
}

// Package wikiapi fetches revision wikitext from a MediaWiki action API.
package wikiapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// DefaultURL is the API endpoint template; {lang} is replaced per request.
const DefaultURL = "https://{lang}.wikipedia.org/w/api.php"

// ErrNotFound is returned for unknown or deleted revisions.
var ErrNotFound = errors.New("revision not found")

var langRe = regexp.MustCompile(`^[a-z][a-z0-9-]{1,15}$`)

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// Revision is one stored version of a page.
type Revision struct {
	ID        int64     `json:"revid"`
	ParentID  int64     `json:"parentid"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"-"`
}

// Client communicates with the MediaWiki action API.
type Client struct {
	urlTemplate string
	userAgent   string
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient creates a client. rps <= 0 disables throttling.
func NewClient(urlTemplate, userAgent string, rps float64, burst int) *Client {
	if urlTemplate == "" {
		urlTemplate = DefaultURL
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &Client{
		urlTemplate: urlTemplate,
		userAgent:   userAgent,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// ValidLang reports whether lang looks like a wiki language code.
func ValidLang(lang string) bool { return langRe.MatchString(lang) }

// Revision fetches one revision with its content.
func (c *Client) Revision(ctx context.Context, lang string, revID int64) (*Revision, error) {
	if !ValidLang(lang) {
		return nil, fmt.Errorf("invalid language code %q", lang)
	}
	if revID <= 0 {
		return nil, fmt.Errorf("invalid revision id %d", revID)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("prop", "revisions")
	q.Set("revids", strconv.FormatInt(revID, 10))
	q.Set("rvprop", "ids|timestamp|content")
	q.Set("rvslots", "*")
	q.Set("format", "json")
	q.Set("formatversion", "2")
	u := strings.ReplaceAll(c.urlTemplate, "{lang}", lang) + "?" + q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("get revision %d: %w", revID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get revision %d: status %d: %s", revID, resp.StatusCode, truncate(string(body), 200))
	}
	return parseRevision(body, revID)
}

func parseRevision(body []byte, revID int64) (*Revision, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode revision %d: invalid json", revID)
	}
	doc := gjson.ParseBytes(body)
	if e := doc.Get("error"); e.Exists() {
		code := e.Get("code").String()
		if code == "maxlag" || code == "ratelimited" {
			return nil, &RetryableError{StatusCode: http.StatusOK, Message: e.Get("info").String()}
		}
		return nil, fmt.Errorf("wiki api error %s: %s", code, e.Get("info").String())
	}
	if doc.Get("query.badrevids").Exists() {
		return nil, fmt.Errorf("revision %d: %w", revID, ErrNotFound)
	}

	page := doc.Get("query.pages.0")
	rev := page.Get("revisions.0")
	if !rev.Exists() || page.Get("missing").Bool() {
		return nil, fmt.Errorf("revision %d: %w", revID, ErrNotFound)
	}
	content := rev.Get("slots.main.content")
	if !content.Exists() || rev.Get("slots.main.texthidden").Bool() {
		return nil, fmt.Errorf("revision %d content unavailable: %w", revID, ErrNotFound)
	}

	out := &Revision{
		ID:       rev.Get("revid").Int(),
		ParentID: rev.Get("parentid").Int(),
		Title:    page.Get("title").String(),
		Content:  content.String(),
	}
	if ts := rev.Get("timestamp").String(); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			out.Timestamp = t
		}
	}
	return out, nil
}

// RevisionPair fetches a revision and its parent. A page creation has no
// parent; its previous revision is returned empty.
func (c *Client) RevisionPair(ctx context.Context, lang string, revID int64) (prev, curr *Revision, err error) {
	curr, err = c.Revision(ctx, lang, revID)
	if err != nil {
		return nil, nil, err
	}
	if curr.ParentID == 0 {
		return &Revision{Title: curr.Title}, curr, nil
	}
	prev, err = c.Revision(ctx, lang, curr.ParentID)
	if err != nil {
		return nil, nil, fmt.Errorf("parent of %d: %w", revID, err)
	}
	return prev, curr, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package feed implements the remote delta feed client.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.FeedClient = (*Client)(nil)

// TimestampLayout is the ISO-8601 form of the since parameter.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// defaultMinInterval spaces consecutive feed requests.
const defaultMinInterval = time.Second

// Client fetches the delta feed over HTTP.
type Client struct {
	baseURL string
	style   domain.FeedURLStyle
	timeout time.Duration
	http    driven.HTTPDoer
	limiter *rate.Limiter
}

// NewClient creates a feed client. httpClient may be nil.
func NewClient(settings domain.FeedSettings, httpClient driven.HTTPDoer) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	style := settings.URLStyle
	if !style.IsValid() {
		style = domain.FeedURLQuery
	}
	return &Client{
		baseURL: settings.BaseURL,
		style:   style,
		timeout: settings.Timeout,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Every(defaultMinInterval), 1),
	}
}

// SetMinInterval changes the minimum spacing between requests.
// Zero disables throttling.
func (c *Client) SetMinInterval(d time.Duration) {
	if d <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Every(d))
}

// URL builds the request URL for since. A zero since asks for everything
// changed after the Unix epoch.
func (c *Client) URL(since time.Time) string {
	if since.IsZero() {
		since = time.Unix(0, 0)
	}
	stamp := since.UTC().Format(TimestampLayout)

	switch c.style {
	case domain.FeedURLPath:
		return strings.TrimRight(c.baseURL, "/") + "/" + stamp
	default:
		sep := "?"
		if strings.Contains(c.baseURL, "?") {
			sep = "&"
		}
		return c.baseURL + sep + "updated=" + stamp
	}
}

// Fetch returns the raw items changed at or after since.
func (c *Client) Fetch(ctx context.Context, since time.Time) ([]json.RawMessage, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: feed base URL is not configured", domain.ErrTransport)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.URL(since)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", domain.ErrTransport, target, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrTransport, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: fetch %s: unexpected status %d", domain.ErrTransport, target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrTransport, target, err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("%w: feed body is not a JSON array: %v", domain.ErrMalformedInput, err)
	}
	return items, nil
}

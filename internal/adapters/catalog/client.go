// Package catalog resolves scene names against a CMR-style granule search service.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/paulmach/orb"
	"github.com/target/sarbatch/internal/core"
	"github.com/target/sarbatch/internal/domain/model"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPageSize is the number of names sent in one search request.
	DefaultPageSize = 100
	// DefaultAttempts is the number of tries per request, including the first.
	DefaultAttempts = 3
	// DefaultTimeout bounds a single search request.
	DefaultTimeout  = 10 * time.Second
	defaultParallel = 4
	searchPath      = "/search/granules.json"
	maxErrorBody    = 512
)

// entryExpr flattens the search feed into name/polygon pairs. Bursts have no producer id so
// the title is used instead.
var entryExpr = jmespath.MustCompile(`feed.entry[].{name: producer_granule_id || title, polygon: polygons[0][0]}`)

// Options configures a Client.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
	PageSize   int
	// Parallel bounds the number of concurrent page requests.
	Parallel int
	Logger   *slog.Logger
}

// Client is an HTTP implementation of core.CatalogClient.
type Client struct {
	base     *url.URL
	http     *http.Client
	attempts uint
	delay    time.Duration
	pageSize int
	parallel int
	logger   *slog.Logger
}

var _ core.CatalogClient = (*Client)(nil)

// NewClient validates opts and returns a Client.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("catalog base url is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse catalog url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("catalog url must be http or https, got %q", opts.BaseURL)
	}

	c := &Client{
		base:     base,
		http:     opts.HTTPClient,
		attempts: opts.Attempts,
		delay:    opts.RetryDelay,
		pageSize: opts.PageSize,
		parallel: opts.Parallel,
		logger:   opts.Logger,
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.attempts == 0 {
		c.attempts = DefaultAttempts
	}
	if c.delay <= 0 {
		c.delay = 200 * time.Millisecond
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.parallel <= 0 {
		c.parallel = defaultParallel
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "catalog_client")
	return c, nil
}

// Lookup returns metadata for every requested name the catalog knows. Names are searched in
// pages of PageSize, concurrently.
func (c *Client) Lookup(ctx context.Context, names []string) ([]model.Granule, error) {
	names = distinct(names)
	if len(names) == 0 {
		return nil, nil
	}

	pages := chunk(names, c.pageSize)
	results := make([][]model.Granule, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallel)
	for i, page := range pages {
		g.Go(func() error {
			found, err := c.searchPage(gctx, page)
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out []model.Granule
	for _, found := range results {
		for _, gr := range found {
			if wanted[gr.Name] {
				out = append(out, gr)
				delete(wanted, gr.Name)
			}
		}
	}
	c.logger.DebugContext(ctx, "catalog lookup", "requested", len(names), "found", len(out), "pages", len(pages))
	return out, nil
}

func (c *Client) searchPage(ctx context.Context, names []string) ([]model.Granule, error) {
	form := url.Values{}
	form.Set("page_size", strconv.Itoa(len(names)))
	for _, n := range names {
		form.Add("readable_granule_name[]", n)
	}

	var body []byte
	err := retry.Do(
		func() error {
			var reqErr error
			body, reqErr = c.post(ctx, form)
			return reqErr
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "retrying catalog search", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCatalogUnavailable, err)
	}

	granules, err := parseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrCatalogUnavailable, err)
	}
	return granules, nil
}

// post issues one search request. Client errors are not retried.
func (c *Client) post(ctx context.Context, form url.Values) ([]byte, error) {
	endpoint := c.base.JoinPath(searchPath).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("catalog returned %d: %s", resp.StatusCode, truncate(body))
	case resp.StatusCode != http.StatusOK:
		return nil, retry.Unrecoverable(fmt.Errorf("catalog returned %d: %s", resp.StatusCode, truncate(body)))
	}
	return body, nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

func distinct(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func chunk(names []string, size int) [][]string {
	var out [][]string
	for size < len(names) {
		names, out = names[size:], append(out, names[:size:size])
	}
	return append(out, names)
}

// ParsePolygon converts the catalog's "lat1 lon1 lat2 lon2 ..." ring into a closed polygon
// of lon/lat points.
func ParsePolygon(s string) (orb.Polygon, error) {
	fields := strings.Fields(s)
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("polygon has an odd number of coordinates: %d", len(fields))
	}
	if len(fields) < 6 {
		return nil, fmt.Errorf("polygon needs at least 3 points, got %d", len(fields)/2)
	}
	ring := make(orb.Ring, 0, len(fields)/2+1)
	for i := 0; i < len(fields); i += 2 {
		lat, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("latitude %q: %w", fields[i], err)
		}
		lon, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("longitude %q: %w", fields[i+1], err)
		}
		ring = append(ring, orb.Point{lon, lat})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}, nil
}

// parseFeed extracts granules from a search response body. Entries without a usable polygon
// are dropped, which callers observe as the scene being absent.
func parseFeed(body []byte) ([]model.Granule, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	raw, err := entryExpr.Search(doc)
	if err != nil {
		return nil, fmt.Errorf("extract entries: %w", err)
	}
	entries, _ := raw.([]any)

	out := make([]model.Granule, 0, len(entries))
	for _, e := range entries {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		ring, _ := m["polygon"].(string)
		if name == "" || ring == "" {
			continue
		}
		poly, perr := ParsePolygon(ring)
		if perr != nil {
			continue
		}
		out = append(out, model.Granule{Name: name, Polygon: poly})
	}
	return out, nil
}

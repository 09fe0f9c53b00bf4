package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/config"
	"github.com/aluiziolira/go-scrape-discogs/models"
	"github.com/aluiziolira/go-scrape-discogs/parser"
	"github.com/gocolly/colly/v2"
)

// RateLimitHeader carries the remaining request quota on every API response.
const RateLimitHeader = "X-Discogs-Ratelimit-Remaining"

const responseKey = "response"

// Client issues governed API requests through a synchronous colly collector.
// Every round trip, failed or not, is followed by Observe (when the quota
// header is present) and Throttle.
type Client struct {
	cfg       *config.Config
	base      *url.URL
	collector *colly.Collector
	governor  *Governor
	Metrics   *Metrics

	requestCount int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewClient builds a client for cfg.BaseURL.
func NewClient(cfg *config.Config, governor *Governor, metrics *Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})

	return &Client{
		cfg:          cfg,
		base:         parsed,
		collector:    collector,
		governor:     governor,
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}, nil
}

// InventoryURL is a seller's inventory URL without a page parameter, newest listings first.
func (c *Client) InventoryURL(seller string) string {
	u := c.base.JoinPath("users", seller, "inventory")
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.cfg.PageSize))
	q.Set("sort", "listed")
	q.Set("sort_order", "desc")
	u.RawQuery = q.Encode()
	return u.String()
}

// PageURL appends the page parameter to an inventory URL.
func PageURL(inventoryURL string, page int) (string, error) {
	u, err := url.Parse(inventoryURL)
	if err != nil {
		return "", fmt.Errorf("parse inventory url: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FetchInventory reads one inventory page.
func (c *Client) FetchInventory(ctx context.Context, pageURL string) (*models.InventoryPage, error) {
	body, err := c.get(ctx, "inventory", pageURL)
	if err != nil {
		return nil, err
	}
	page, err := parser.ParseInventory(body)
	if err != nil {
		return nil, c.fail(&APIError{Kind: KindDecode, URL: pageURL, Err: err})
	}
	return page, nil
}

// FetchRelease reads catalog metadata for a release.
func (c *Client) FetchRelease(ctx context.Context, releaseID int64) (models.CatalogInfo, error) {
	u := c.base.JoinPath("releases", strconv.FormatInt(releaseID, 10)).String()
	body, err := c.get(ctx, "release", u)
	if err != nil {
		return parser.DefaultCatalogInfo(), err
	}
	info, err := parser.ParseRelease(body)
	if err != nil {
		return info, c.fail(&APIError{Kind: KindDecode, URL: u, Err: err})
	}
	return info, nil
}

// FetchListingPrice reads the authoritative reference-currency price of a listing.
func (c *Client) FetchListingPrice(ctx context.Context, listingID int64) (float64, error) {
	u := c.base.JoinPath("marketplace", "listings", strconv.FormatInt(listingID, 10))
	u.RawQuery = url.Values{"curr_abbr": {c.cfg.ReferenceCurrency}}.Encode()
	body, err := c.get(ctx, "listing", u.String())
	if err != nil {
		return 0, err
	}
	price, err := parser.ParseListingPrice(body)
	if err != nil {
		return 0, c.fail(&APIError{Kind: KindDecode, URL: u.String(), Err: err})
	}
	return price, nil
}

// FetchShippingPolicies returns the seller's shipping policy document as-is.
func (c *Client) FetchShippingPolicies(ctx context.Context, sellerID int64) (json.RawMessage, error) {
	u := c.base.JoinPath("v3", "marketplace", "shipping", "policies")
	u.RawQuery = url.Values{
		"seller_id": {strconv.FormatInt(sellerID, 10)},
		"curr_abbr": {c.cfg.ReferenceCurrency},
	}.Encode()
	body, err := c.get(ctx, "shipping", u.String())
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, c.fail(&APIError{Kind: KindDecode, URL: u.String(), Err: errors.New("invalid json")})
	}
	return json.RawMessage(body), nil
}

// RequestCount is the number of upstream requests issued so far.
func (c *Client) RequestCount() int {
	return int(atomic.LoadInt64(&c.requestCount))
}

func (c *Client) get(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current := atomic.AddInt64(&c.requestCount, 1)
	c.Metrics.IncRequest(endpoint)
	if current%50 == 0 {
		slog.Debug("crawler request progress",
			slog.Int64("requests", current),
			slog.Int("quota_remaining", c.governor.State.Remaining),
			slog.String("endpoint", endpoint),
		)
	}

	hdr := http.Header{}
	hdr.Set("Accept", "application/json")
	hdr.Set("User-Agent", c.cfg.UserAgent)
	if c.cfg.Token != "" {
		hdr.Set("Authorization", "Discogs token="+c.cfg.Token)
	}

	reqCtx := colly.NewContext()
	start := time.Now()
	err := c.collector.Request(http.MethodGet, rawURL, nil, reqCtx, hdr)
	c.Metrics.ObserveDuration(time.Since(start))

	resp, _ := reqCtx.GetAny(responseKey).(*colly.Response)
	if resp != nil && resp.Headers != nil {
		if remaining, ok := parseRemaining(resp.Headers.Get(RateLimitHeader)); ok {
			c.governor.Observe(remaining)
		}
	}
	if werr := c.governor.Throttle(ctx); werr != nil {
		return nil, werr
	}

	if err != nil {
		return nil, c.fail(newAPIError(rawURL, 0, err))
	}
	if resp == nil {
		return nil, c.fail(newAPIError(rawURL, 0, errors.New("no response")))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		slog.Error("non-2xx response",
			slog.Int("status", resp.StatusCode),
			slog.String("endpoint", endpoint),
			slog.String("url", rawURL),
		)
		return nil, c.fail(newAPIError(rawURL, resp.StatusCode, nil))
	}
	return resp.Body, nil
}

func (c *Client) fail(err error) error {
	category := errorTypeLabel(err)
	c.mu.Lock()
	c.errorsByType[category]++
	c.mu.Unlock()
	c.Metrics.IncError(category)
	return err
}

func (c *Client) snapshotErrors() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		out[k] = v
	}
	return out
}

func parseRemaining(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

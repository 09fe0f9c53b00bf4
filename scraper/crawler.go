package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/config"
	"github.com/aluiziolira/go-scrape-discogs/models"
	"github.com/aluiziolira/go-scrape-discogs/store"
	"github.com/google/uuid"
)

// Progress is a point-in-time view of a running crawl, safe to read from
// other goroutines.
type Progress struct {
	RunID          string    `json:"run_id"`
	Running        bool      `json:"running"`
	StartedAt      time.Time `json:"started_at"`
	CurrentSeller  string    `json:"current_seller,omitempty"`
	SellersDone    int       `json:"sellers_done"`
	SellersTotal   int       `json:"sellers_total"`
	SellersFailed  int       `json:"sellers_failed"`
	Listings       int       `json:"listings"`
	Pages          int       `json:"pages"`
	FailedPages    int       `json:"failed_pages"`
	QuotaRemaining int       `json:"quota_remaining"`
	KnownRates     int       `json:"known_rates"`
}

// Crawler walks sellers one at a time. The governor, rate table and catalog
// are shared by every seller of the process and are not safe for concurrent
// crawls.
type Crawler struct {
	cfg     *config.Config
	records store.Store

	RunID    string
	Metrics  *Metrics
	Governor *Governor
	Rates    *ExchangeRateTable

	client     *Client
	catalog    *Catalog
	normalizer *Normalizer
	paginator  *Paginator

	mu       sync.Mutex
	progress Progress
}

// NewCrawler wires the crawl components for cfg. records may be nil, in
// which case nothing is persisted and resume is disabled.
func NewCrawler(cfg *config.Config, records store.Store) (*Crawler, error) {
	metrics := NewMetrics()
	governor := NewGovernor(cfg, metrics)

	client, err := NewClient(cfg, governor, metrics)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalog(client, cfg.CatalogCacheSize, metrics)
	if err != nil {
		return nil, err
	}
	rates := NewExchangeRateTable()
	normalizer := NewNormalizer(cfg.ReferenceCurrency, rates, client, metrics)

	runID := uuid.NewString()
	return &Crawler{
		cfg:        cfg,
		records:    records,
		RunID:      runID,
		Metrics:    metrics,
		Governor:   governor,
		Rates:      rates,
		client:     client,
		catalog:    catalog,
		normalizer: normalizer,
		paginator:  NewPaginator(client, catalog, normalizer, metrics),
		progress:   Progress{RunID: runID, QuotaRemaining: governor.State.Remaining},
	}, nil
}

// TotalPages is ceil(totalItems/pageSize), capped at maxPages when positive.
func TotalPages(totalItems, pageSize, maxPages int) int {
	if totalItems <= 0 || pageSize <= 0 {
		return 0
	}
	pages := (totalItems + pageSize - 1) / pageSize
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	return pages
}

// CrawlSeller produces the record for one seller. A failure on page 1 aborts
// the seller with ErrFirstPage; later pages that fail are logged and skipped.
func (c *Crawler) CrawlSeller(ctx context.Context, seller models.Seller) (*models.SellerRecord, error) {
	inventoryURL := c.client.InventoryURL(seller.Name)

	first, err := c.paginator.FetchPage(ctx, inventoryURL, 1)
	c.notePage(err)
	if err != nil {
		return nil, fmt.Errorf("seller %q: %w: %w", seller.Name, ErrFirstPage, err)
	}

	totalPages := TotalPages(first.TotalItems, c.cfg.PageSize, c.cfg.MaxPages)
	if all := TotalPages(first.TotalItems, c.cfg.PageSize, 0); all > totalPages {
		slog.Warn("max pages cap drops inventory pages",
			slog.String("seller", seller.Name),
			slog.Int("pages", all),
			slog.Int("max_pages", c.cfg.MaxPages),
		)
	}
	slog.Info("crawling seller",
		slog.String("seller", seller.Name),
		slog.Int("items", first.TotalItems),
		slog.Int("pages", totalPages),
	)

	record := &models.SellerRecord{
		Name:     seller.Name,
		Location: first.ShipsFrom,
		Releases: first.Listings,
	}
	record.ShippingPolicies = c.shippingPolicies(ctx, seller.Name, first.SellerID)

	for page := 2; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := c.paginator.FetchPage(ctx, inventoryURL, page)
		c.notePage(err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Warn("inventory page skipped",
				slog.String("seller", seller.Name),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			continue
		}
		record.Releases = append(record.Releases, result.Listings...)
	}

	for i := range record.Releases {
		record.Releases[i].Seller = seller.Name
	}
	record.CrawledAt = time.Now().UTC()
	return record, nil
}

func (c *Crawler) shippingPolicies(ctx context.Context, seller string, sellerID int64) json.RawMessage {
	if sellerID == 0 {
		slog.Debug("no seller id on first page, skipping shipping policies",
			slog.String("seller", seller),
		)
		return nil
	}
	policies, err := c.client.FetchShippingPolicies(ctx, sellerID)
	if err != nil {
		slog.Warn("shipping policies unavailable",
			slog.String("seller", seller),
			slog.Int64("seller_id", sellerID),
			slog.Any("error", err),
		)
		return nil
	}
	return policies
}

// Run crawls sellers in order and passes each record to handle. With Resume
// enabled, sellers already in the record store are loaded instead of
// crawled. A handle error stops the run.
func (c *Crawler) Run(ctx context.Context, sellers []models.Seller, handle func(context.Context, *models.SellerRecord) error) (*models.CrawlResult, error) {
	start := time.Now()
	c.mu.Lock()
	c.progress.Running = true
	c.progress.StartedAt = start
	c.progress.SellersTotal = len(sellers)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.progress.Running = false
		c.progress.CurrentSeller = ""
		c.mu.Unlock()
	}()

	result := &models.CrawlResult{
		RunID:     c.RunID,
		StartTime: start,
	}

	var runErr error
	for _, seller := range sellers {
		if ctx.Err() != nil {
			break
		}
		c.setCurrent(seller.Name)

		record, resumed, err := c.recordFor(ctx, seller)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			result.FailedSellers = append(result.FailedSellers, seller.Name)
			c.Metrics.IncSeller("failed")
			c.finishSeller(0, true)
			slog.Error("seller crawl failed",
				slog.String("seller", seller.Name),
				slog.String("category", errorTypeLabel(err)),
				slog.Any("error", err),
			)
			continue
		}
		if resumed {
			result.ResumedCount++
			c.Metrics.IncSeller("resumed")
		} else {
			c.Metrics.IncSeller("crawled")
		}
		result.SellerCount++
		result.ListingCount += len(record.Releases)
		c.finishSeller(len(record.Releases), false)

		if handle != nil {
			if err := handle(ctx, record); err != nil {
				runErr = fmt.Errorf("handle seller %q: %w", seller.Name, err)
				break
			}
		}
	}

	c.mu.Lock()
	result.PageCount = c.progress.Pages
	result.FailedPages = c.progress.FailedPages
	c.mu.Unlock()
	result.EndTime = time.Now()
	result.ErrorsByType = c.client.snapshotErrors()
	result.RequestCount = c.client.RequestCount()
	return result, runErr
}

// recordFor loads a stored record when resuming, otherwise crawls and saves.
func (c *Crawler) recordFor(ctx context.Context, seller models.Seller) (*models.SellerRecord, bool, error) {
	if c.records != nil && c.cfg.Resume {
		var stored models.SellerRecord
		ok, err := c.records.Load(ctx, store.SellerKey(seller.Name), &stored)
		if err != nil {
			slog.Warn("stored record unreadable, crawling",
				slog.String("seller", seller.Name),
				slog.Any("error", err),
			)
		} else if ok {
			slog.Info("resumed seller from store",
				slog.String("seller", seller.Name),
				slog.Int("releases", len(stored.Releases)),
			)
			return &stored, true, nil
		}
	}

	record, err := c.CrawlSeller(ctx, seller)
	if err != nil {
		return nil, false, err
	}
	if c.records != nil {
		if err := c.records.Save(ctx, store.SellerKey(seller.Name), record); err != nil {
			slog.Error("save seller record",
				slog.String("seller", seller.Name),
				slog.Any("error", err),
			)
		}
	}
	return record, false, nil
}

// Progress returns a snapshot of the current run.
func (c *Crawler) Progress() Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// RequestCount is the number of upstream requests issued so far.
func (c *Crawler) RequestCount() int {
	return c.client.RequestCount()
}

func (c *Crawler) setCurrent(name string) {
	c.mu.Lock()
	c.progress.CurrentSeller = name
	c.mu.Unlock()
}

func (c *Crawler) finishSeller(listings int, failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.SellersDone++
	c.progress.Listings += listings
	if failed {
		c.progress.SellersFailed++
	}
}

func (c *Crawler) notePage(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress.Pages++
	if err != nil && !errors.Is(err, context.Canceled) {
		c.progress.FailedPages++
	}
	c.progress.QuotaRemaining = c.Governor.State.Remaining
	c.progress.KnownRates = c.Rates.Len()
}

package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

// InventoryFetcher reads one decoded inventory page.
type InventoryFetcher interface {
	FetchInventory(ctx context.Context, pageURL string) (*models.InventoryPage, error)
}

// PageResult is the enriched content of one inventory page. TotalItems,
// ShipsFrom and SellerID are only meaningful for page 1.
type PageResult struct {
	Listings   []models.EnrichedListing
	TotalItems int
	ShipsFrom  string
	SellerID   int64
}

// Paginator fetches inventory pages and enriches their for-sale listings.
type Paginator struct {
	fetcher    InventoryFetcher
	catalog    *Catalog
	normalizer *Normalizer
	Metrics    *Metrics
}

// NewPaginator builds a paginator that enriches through catalog and normalizer.
func NewPaginator(fetcher InventoryFetcher, catalog *Catalog, normalizer *Normalizer, metrics *Metrics) *Paginator {
	return &Paginator{
		fetcher:    fetcher,
		catalog:    catalog,
		normalizer: normalizer,
		Metrics:    metrics,
	}
}

// FetchPage reads page of inventoryURL. Listings keep upstream order; entries
// whose status is not "For Sale" are skipped without any further call.
func (p *Paginator) FetchPage(ctx context.Context, inventoryURL string, page int) (*PageResult, error) {
	pageURL, err := PageURL(inventoryURL, page)
	if err != nil {
		return nil, err
	}
	inventory, err := p.fetcher.FetchInventory(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	result := &PageResult{
		Listings:   make([]models.EnrichedListing, 0, len(inventory.Listings)),
		TotalItems: inventory.TotalItems,
	}
	if len(inventory.Listings) > 0 {
		result.ShipsFrom = inventory.Listings[0].ShipsFrom
		result.SellerID = inventory.Listings[0].SellerID
	}

	for _, listing := range inventory.Listings {
		if listing.Status != models.StatusForSale {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Listings = append(result.Listings, p.enrich(ctx, listing))
		p.Metrics.IncListings()
	}

	slog.Debug("inventory page enriched",
		slog.Int("page", page),
		slog.Int("listings", len(inventory.Listings)),
		slog.Int("for_sale", len(result.Listings)),
	)
	return result, nil
}

func (p *Paginator) enrich(ctx context.Context, listing models.Listing) models.EnrichedListing {
	info := p.catalog.Describe(ctx, listing.ReleaseID)

	price := models.Price{Amount: listing.Price, Currency: listing.Currency}
	if amount, ok := p.normalizer.Normalize(ctx, listing.ID, listing.Currency, listing.Price); ok {
		price = models.Price{Amount: amount, Currency: p.normalizer.Reference, Normalized: true}
	}

	return models.EnrichedListing{
		ListingID:       listing.ID,
		ReleaseID:       listing.ReleaseID,
		Title:           listing.Title,
		Artist:          listing.Artist,
		Condition:       listing.Condition,
		SleeveCondition: listing.SleeveCondition,
		Link:            listing.URI,
		Price:           price,
		CatalogInfo:     info,
	}
}

package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-discogs/models"
	"github.com/aluiziolira/go-scrape-discogs/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ReleaseLookup fetches catalog metadata for one release.
type ReleaseLookup interface {
	FetchRelease(ctx context.Context, releaseID int64) (models.CatalogInfo, error)
}

// Catalog memoises release metadata across every seller of a run. A release
// is fetched at most once; a failed lookup memoises the default info.
type Catalog struct {
	lookup  ReleaseLookup
	cache   *lru.Cache[int64, models.CatalogInfo]
	Metrics *Metrics
}

// NewCatalog returns a catalog holding up to size releases.
func NewCatalog(lookup ReleaseLookup, size int, metrics *Metrics) (*Catalog, error) {
	cache, err := lru.New[int64, models.CatalogInfo](size)
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}
	return &Catalog{lookup: lookup, cache: cache, Metrics: metrics}, nil
}

// Describe never fails: on upstream errors it returns the default info.
func (c *Catalog) Describe(ctx context.Context, releaseID int64) models.CatalogInfo {
	if info, ok := c.cache.Get(releaseID); ok {
		c.Metrics.IncCatalogCache("hit")
		return info
	}

	info, err := c.lookup.FetchRelease(ctx, releaseID)
	if err != nil {
		c.Metrics.IncCatalogCache("failed")
		slog.Warn("release lookup failed",
			slog.Int64("release_id", releaseID),
			slog.Any("error", err),
		)
		info = parser.DefaultCatalogInfo()
		// a cancelled lookup says nothing about the release
		if ctx.Err() == nil {
			c.cache.Add(releaseID, info)
		}
		return info
	}
	c.Metrics.IncCatalogCache("miss")
	c.cache.Add(releaseID, info)
	return info
}

// Len reports how many releases are memoised.
func (c *Catalog) Len() int {
	return c.cache.Len()
}

// Package models defines data structures for the crawler.
package models

import (
	"encoding/json"
	"time"
)

// StatusForSale is the only inventory status that gets enriched.
const StatusForSale = "For Sale"

// Seller identifies a marketplace seller by name. Names are case-sensitive.
type Seller struct {
	Name string `json:"name"`
}

// Listing is one raw inventory entry as returned by the upstream API.
type Listing struct {
	ID              int64   `json:"listing_id"`
	Status          string  `json:"status"`
	Price           float64 `json:"price"`
	Currency        string  `json:"currency"`
	Condition       string  `json:"condition"`
	SleeveCondition string  `json:"sleeve_condition"`
	URI             string  `json:"uri"`
	ReleaseID       int64   `json:"release_id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	ShipsFrom       string  `json:"ships_from"`
	SellerID        int64   `json:"seller_id"`
}

// InventoryPage is a decoded page of a seller's inventory.
type InventoryPage struct {
	Listings   []Listing
	TotalItems int
}

// Video is a catalog video reference.
type Video struct {
	URI      string `json:"uri"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
	Embed    bool   `json:"embed"`
}

// CatalogInfo holds per-release catalog metadata.
type CatalogInfo struct {
	Label        string   `json:"label"`
	Genres       []string `json:"genres"`
	Styles       []string `json:"styles"`
	Format       string   `json:"format"`
	ForSaleCount int      `json:"for_sale"`
	LowestPrice  *float64 `json:"lowest_price"`
	HaveCount    int      `json:"have"`
	WantCount    int      `json:"want"`
	Videos       []Video  `json:"videos,omitempty"`
}

// Price is a listing price tagged with whether it was converted to the
// reference currency. An unconverted price keeps the seller's amount and code.
type Price struct {
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Normalized bool    `json:"normalized"`
}

// EnrichedListing is a for-sale listing joined with its catalog data and price.
type EnrichedListing struct {
	ListingID       int64  `json:"listing_id"`
	ReleaseID       int64  `json:"release_id"`
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	Condition       string `json:"condition"`
	SleeveCondition string `json:"sleeve_condition"`
	Link            string `json:"link"`
	Seller          string `json:"seller,omitempty"`
	Price           Price  `json:"price"`
	CatalogInfo
}

// SellerRecord is the terminal output of crawling one seller.
type SellerRecord struct {
	Name             string            `json:"name"`
	Releases         []EnrichedListing `json:"releases"`
	Location         string            `json:"location"`
	ShippingPolicies json.RawMessage   `json:"shipping_policies,omitempty"`
	CrawledAt        time.Time         `json:"crawled_at"`
}

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	RunID         string
	StartTime     time.Time
	EndTime       time.Time
	SellerCount   int
	ResumedCount  int
	FailedSellers []string
	ListingCount  int
	ErrorsByType  map[string]int
	RequestCount  int
	PageCount     int
	FailedPages   int
}

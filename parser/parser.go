// Package parser decodes upstream API payloads into models and validates them.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

// UnknownLabel is used when a release carries no label.
const UnknownLabel = "Unknown"

type inventoryPayload struct {
	Pagination struct {
		Items int `json:"items"`
	} `json:"pagination"`
	Listings []listingPayload `json:"listings"`
}

type pricePayload struct {
	Value    *float64 `json:"value"`
	Currency string   `json:"currency"`
}

type listingPayload struct {
	ID              int64        `json:"id"`
	Status          string       `json:"status"`
	Price           pricePayload `json:"price"`
	Condition       string       `json:"condition"`
	SleeveCondition string       `json:"sleeve_condition"`
	URI             string       `json:"uri"`
	ShipsFrom       string       `json:"ships_from"`
	Release         struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Artist string `json:"artist"`
	} `json:"release"`
	Seller struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"seller"`
}

type releasePayload struct {
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Genres  []string `json:"genres"`
	Styles  []string `json:"styles"`
	Formats []struct {
		Name string `json:"name"`
	} `json:"formats"`
	NumForSale  int      `json:"num_for_sale"`
	LowestPrice *float64 `json:"lowest_price"`
	Community   struct {
		Have int `json:"have"`
		Want int `json:"want"`
	} `json:"community"`
	Videos []models.Video `json:"videos"`
}

// ParseInventory decodes one inventory page.
func ParseInventory(body []byte) (*models.InventoryPage, error) {
	var payload inventoryPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}

	page := &models.InventoryPage{
		TotalItems: payload.Pagination.Items,
		Listings:   make([]models.Listing, 0, len(payload.Listings)),
	}
	for _, item := range payload.Listings {
		listing := models.Listing{
			ID:              item.ID,
			Status:          item.Status,
			Currency:        strings.ToUpper(strings.TrimSpace(item.Price.Currency)),
			Condition:       item.Condition,
			SleeveCondition: item.SleeveCondition,
			URI:             item.URI,
			ReleaseID:       item.Release.ID,
			Title:           item.Release.Title,
			Artist:          item.Release.Artist,
			ShipsFrom:       item.ShipsFrom,
			SellerID:        item.Seller.ID,
		}
		if item.Price.Value != nil {
			listing.Price = *item.Price.Value
		}
		page.Listings = append(page.Listings, listing)
	}
	return page, nil
}

// ParseRelease decodes release metadata and shapes it into CatalogInfo.
func ParseRelease(body []byte) (models.CatalogInfo, error) {
	var payload releasePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return DefaultCatalogInfo(), fmt.Errorf("decode release: %w", err)
	}

	label := UnknownLabel
	if len(payload.Labels) > 0 {
		label = payload.Labels[0].Name
	}

	formats := make([]string, 0, len(payload.Formats))
	for _, f := range payload.Formats {
		formats = append(formats, f.Name)
	}

	return models.CatalogInfo{
		Label:        label,
		Genres:       payload.Genres,
		Styles:       payload.Styles,
		Format:       strings.Join(formats, ", "),
		ForSaleCount: payload.NumForSale,
		LowestPrice:  payload.LowestPrice,
		HaveCount:    payload.Community.Have,
		WantCount:    payload.Community.Want,
		Videos:       payload.Videos,
	}, nil
}

// ParseListingPrice extracts the price value of a single-listing payload.
func ParseListingPrice(body []byte) (float64, error) {
	var payload struct {
		Price pricePayload `json:"price"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode listing: %w", err)
	}
	if payload.Price.Value == nil {
		return 0, fmt.Errorf("listing payload missing price value")
	}
	return *payload.Price.Value, nil
}

// DefaultCatalogInfo is returned when release metadata cannot be fetched.
func DefaultCatalogInfo() models.CatalogInfo {
	return models.CatalogInfo{Label: UnknownLabel}
}

// ValidateListing ensures an enriched listing carries the fields consumers key on.
func ValidateListing(l *models.EnrichedListing) error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}
	if l.ListingID <= 0 {
		return fmt.Errorf("listing missing id")
	}
	if l.ReleaseID <= 0 {
		return fmt.Errorf("listing %d missing release id", l.ListingID)
	}
	if strings.TrimSpace(l.Price.Currency) == "" {
		return fmt.Errorf("listing %d missing price currency", l.ListingID)
	}
	return nil
}

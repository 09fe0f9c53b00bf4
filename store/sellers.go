package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

// SellersKey holds the persisted seller list.
const SellersKey = "sellers"

// SellerKey is where a seller's last record is saved.
func SellerKey(name string) string {
	return "seller/" + name
}

// SellerSource yields the deduplicated sellers to crawl.
type SellerSource interface {
	Sellers(ctx context.Context) ([]models.Seller, error)
}

// MergeSellers appends names not already present, preserving order.
// Names are compared exactly; blank names are dropped.
func MergeSellers(existing []models.Seller, names ...string) []models.Seller {
	seen := make(map[string]struct{}, len(existing)+len(names))
	out := make([]models.Seller, 0, len(existing)+len(names))
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, models.Seller{Name: name})
	}
	for _, s := range existing {
		add(s.Name)
	}
	for _, name := range names {
		add(name)
	}
	return out
}

// StoredSellers merges the persisted seller list with Extra names and saves
// the merged list back.
type StoredSellers struct {
	Store Store
	Extra []string
}

func (s StoredSellers) Sellers(ctx context.Context) ([]models.Seller, error) {
	var existing []models.Seller
	if _, err := s.Store.Load(ctx, SellersKey, &existing); err != nil {
		return nil, fmt.Errorf("load sellers: %w", err)
	}
	merged := MergeSellers(existing, s.Extra...)
	if len(merged) != len(existing) {
		if err := s.Store.Save(ctx, SellersKey, merged); err != nil {
			return nil, fmt.Errorf("save sellers: %w", err)
		}
	}
	return merged, nil
}

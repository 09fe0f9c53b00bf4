// Package recommend selects undervalued, scarce, in-demand vinyl listings.
package recommend

import (
	"strings"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

// Rule is a pure predicate over enriched listings.
type Rule struct {
	// Genres is the allow-list; a listing must carry at least one of them.
	Genres []string
	// MaxForSale is the exclusive upper bound on copies currently for sale.
	MaxForSale int
	// MaxPremium is how far above the catalog's lowest price a listing may sit (0.2 = 20%).
	MaxPremium float64
	// Format must appear in the listing's format string, case-insensitively.
	Format string
}

// DefaultRule returns the stock recommendation rule.
func DefaultRule() Rule {
	return Rule{
		Genres:     []string{"Electronic", "Hip Hop"},
		MaxForSale: 10,
		MaxPremium: 0.2,
		Format:     "vinyl",
	}
}

// Match reports whether l should be recommended. Listings lacking a
// converted price or a catalog lowest price never match.
func (r Rule) Match(l models.EnrichedListing) bool {
	if !l.Price.Normalized || l.LowestPrice == nil {
		return false
	}
	if l.HaveCount >= l.WantCount {
		return false
	}
	if l.ForSaleCount >= r.MaxForSale {
		return false
	}
	if l.Price.Amount > *l.LowestPrice*(1+r.MaxPremium) {
		return false
	}
	if !r.genreAllowed(l.Genres) {
		return false
	}
	return strings.Contains(strings.ToLower(l.Format), strings.ToLower(r.Format))
}

// Filter returns the matching listings in input order.
func (r Rule) Filter(listings []models.EnrichedListing) []models.EnrichedListing {
	out := make([]models.EnrichedListing, 0)
	for _, l := range listings {
		if r.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

func (r Rule) genreAllowed(genres []string) bool {
	for _, g := range genres {
		for _, allowed := range r.Genres {
			if g == allowed {
				return true
			}
		}
	}
	return false
}

package recommend

import (
	"testing"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

func candidate() models.EnrichedListing {
	lowest := 20.0
	return models.EnrichedListing{
		ListingID: 1,
		ReleaseID: 2,
		Price:     models.Price{Amount: 22, Currency: "USD", Normalized: true},
		CatalogInfo: models.CatalogInfo{
			Label:        "Warp Records",
			Genres:       []string{"Rock", "Electronic"},
			Format:       "Vinyl, LP, Album",
			ForSaleCount: 3,
			LowestPrice:  &lowest,
			HaveCount:    50,
			WantCount:    200,
		},
	}
}

func TestRuleMatch(t *testing.T) {
	rule := DefaultRule()

	tests := []struct {
		name   string
		mutate func(*models.EnrichedListing)
		want   bool
	}{
		{name: "undervalued scarce vinyl", mutate: func(*models.EnrichedListing) {}, want: true},
		{
			name:   "unconverted price",
			mutate: func(l *models.EnrichedListing) { l.Price = models.Price{Amount: 22, Currency: "EUR"} },
			want:   false,
		},
		{
			name:   "no lowest price",
			mutate: func(l *models.EnrichedListing) { l.LowestPrice = nil },
			want:   false,
		},
		{
			name:   "demand equals supply",
			mutate: func(l *models.EnrichedListing) { l.HaveCount, l.WantCount = 200, 200 },
			want:   false,
		},
		{
			name:   "too many copies for sale",
			mutate: func(l *models.EnrichedListing) { l.ForSaleCount = 10 },
			want:   false,
		},
		{
			name:   "exactly twenty percent above lowest",
			mutate: func(l *models.EnrichedListing) { l.Price.Amount = 24 },
			want:   true,
		},
		{
			name:   "more than twenty percent above lowest",
			mutate: func(l *models.EnrichedListing) { l.Price.Amount = 24.01 },
			want:   false,
		},
		{
			name:   "genre not allowed",
			mutate: func(l *models.EnrichedListing) { l.Genres = []string{"Jazz"} },
			want:   false,
		},
		{
			name:   "no genres",
			mutate: func(l *models.EnrichedListing) { l.Genres = nil },
			want:   false,
		},
		{
			name:   "format case insensitive",
			mutate: func(l *models.EnrichedListing) { l.Format = "VINYL, 12\"" },
			want:   true,
		},
		{
			name:   "not vinyl",
			mutate: func(l *models.EnrichedListing) { l.Format = "CD, Album" },
			want:   false,
		},
		{
			name:   "converted price of zero",
			mutate: func(l *models.EnrichedListing) { l.Price.Amount = 0 },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := candidate()
			tt.mutate(&l)
			if got := rule.Match(l); got != tt.want {
				t.Fatalf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRuleMatchIsPure(t *testing.T) {
	rule := DefaultRule()
	l := candidate()
	first := rule.Match(l)
	second := rule.Match(l)
	if first != second {
		t.Fatalf("Match returned %v then %v for the same listing", first, second)
	}
}

func TestRuleFilterPreservesOrder(t *testing.T) {
	rule := DefaultRule()

	a := candidate()
	a.ListingID = 10
	b := candidate()
	b.ListingID = 11
	b.Format = "CD"
	c := candidate()
	c.ListingID = 12

	got := rule.Filter([]models.EnrichedListing{a, b, c})
	if len(got) != 2 {
		t.Fatalf("filtered = %d, want 2", len(got))
	}
	if got[0].ListingID != 10 || got[1].ListingID != 12 {
		t.Fatalf("unexpected order: %d, %d", got[0].ListingID, got[1].ListingID)
	}
}

package scraper

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
)

// ExchangeRateTable maps a currency code to its multiplier into the
// reference currency. A rate is written once, from the first listing seen in
// that currency, and never recomputed for the life of the table.
type ExchangeRateTable struct {
	rates map[string]decimal.Decimal
}

// NewExchangeRateTable returns an empty rate table.
func NewExchangeRateTable() *ExchangeRateTable {
	return &ExchangeRateTable{rates: make(map[string]decimal.Decimal)}
}

// Get returns the derived rate for code.
func (t *ExchangeRateTable) Get(code string) (decimal.Decimal, bool) {
	rate, ok := t.rates[code]
	return rate, ok
}

// Derive stores referencePrice/amount for code unless a rate already exists.
// It reports false when amount cannot serve as a divisor.
func (t *ExchangeRateTable) Derive(code string, referencePrice, amount decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	if _, ok := t.rates[code]; ok {
		return true
	}
	t.rates[code] = referencePrice.Div(amount)
	return true
}

// Len is the number of currencies with a derived rate.
func (t *ExchangeRateTable) Len() int {
	return len(t.rates)
}

// PriceLookup fetches the authoritative reference-currency price of a listing.
type PriceLookup interface {
	FetchListingPrice(ctx context.Context, listingID int64) (float64, error)
}

// Normalizer converts listing prices to the reference currency, spending an
// upstream call only the first time each currency is seen.
type Normalizer struct {
	Reference string
	Rates     *ExchangeRateTable
	lookup    PriceLookup
	Metrics   *Metrics
}

// NewNormalizer converts into reference, deriving missing rates through lookup.
func NewNormalizer(reference string, rates *ExchangeRateTable, lookup PriceLookup, metrics *Metrics) *Normalizer {
	return &Normalizer{
		Reference: strings.ToUpper(reference),
		Rates:     rates,
		lookup:    lookup,
		Metrics:   metrics,
	}
}

// Normalize returns the price of amount in the reference currency, rounded to
// two decimals. It reports false when no conversion could be established; the
// caller then keeps the raw amount and currency.
func (n *Normalizer) Normalize(ctx context.Context, listingID int64, currency string, amount float64) (float64, bool) {
	code := strings.ToUpper(strings.TrimSpace(currency))
	value := decimal.NewFromFloat(amount)

	if code == n.Reference {
		n.Metrics.IncRateCache("reference")
		return value.Round(2).InexactFloat64(), true
	}
	if rate, ok := n.Rates.Get(code); ok {
		n.Metrics.IncRateCache("hit")
		return value.Mul(rate).Round(2).InexactFloat64(), true
	}
	if code == "" || !value.IsPositive() {
		n.Metrics.IncRateCache("unusable")
		return 0, false
	}

	referencePrice, err := n.lookup.FetchListingPrice(ctx, listingID)
	if err != nil {
		n.Metrics.IncRateCache("lookup_failed")
		slog.Debug("price lookup failed",
			slog.Int64("listing_id", listingID),
			slog.String("currency", code),
			slog.Any("error", err),
		)
		return 0, false
	}

	ref := decimal.NewFromFloat(referencePrice)
	n.Rates.Derive(code, ref, value)
	n.Metrics.IncRateCache("derived")
	slog.Debug("derived exchange rate",
		slog.String("currency", code),
		slog.String("rate", ref.Div(value).String()),
	)
	return ref.Round(2).InexactFloat64(), true
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	pebbleStore, err := NewPebbleStore(filepath.Join(dir, "pebble"))
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "sqlite", "kv.db"))
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}

	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"pebble": pebbleStore,
		"sqlite": sqliteStore,
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestStoreLoadMissingKeepsDefault(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			sellers := []models.Seller{{Name: "default"}}
			ok, err := s.Load(context.Background(), "missing", &sellers)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if ok {
				t.Fatalf("missing key reported as present")
			}
			if len(sellers) != 1 || sellers[0].Name != "default" {
				t.Fatalf("default overwritten: %v", sellers)
			}
		})
	}
}

func TestStoreSaveLoadRecord(t *testing.T) {
	lowest := 19.99
	record := models.SellerRecord{
		Name:     "crate",
		Location: "Germany",
		Releases: []models.EnrichedListing{{
			ListingID: 1,
			ReleaseID: 2,
			Price:     models.Price{Amount: 22, Currency: "USD", Normalized: true},
			CatalogInfo: models.CatalogInfo{
				Label:       "Warp Records",
				Genres:      []string{"Electronic"},
				LowestPrice: &lowest,
			},
		}},
		ShippingPolicies: []byte(`{"policies":[]}`),
		CrawledAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Save(ctx, SellerKey(record.Name), record); err != nil {
				t.Fatalf("save: %v", err)
			}

			var got models.SellerRecord
			ok, err := s.Load(ctx, SellerKey(record.Name), &got)
			if err != nil || !ok {
				t.Fatalf("load ok=%v err=%v", ok, err)
			}
			if got.Name != "crate" || got.Location != "Germany" || len(got.Releases) != 1 {
				t.Fatalf("unexpected record: %+v", got)
			}
			if got.Releases[0].LowestPrice == nil || *got.Releases[0].LowestPrice != lowest {
				t.Fatalf("lowest price lost: %+v", got.Releases[0])
			}
			if !got.CrawledAt.Equal(record.CrawledAt) {
				t.Fatalf("crawled at = %s, want %s", got.CrawledAt, record.CrawledAt)
			}

			record.Location = "France"
			if err := s.Save(ctx, SellerKey(record.Name), record); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			if _, err := s.Load(ctx, SellerKey(record.Name), &got); err != nil {
				t.Fatalf("reload: %v", err)
			}
			if got.Location != "France" {
				t.Fatalf("location = %q after overwrite, want France", got.Location)
			}
			record.Location = "Germany"
		})
	}
}

func TestPebbleStorePersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pebble")
	ctx := context.Background()

	first, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Save(ctx, SellersKey, []models.Seller{{Name: "a"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := NewPebbleStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	var sellers []models.Seller
	if ok, err := second.Load(ctx, SellersKey, &sellers); err != nil || !ok {
		t.Fatalf("load ok=%v err=%v", ok, err)
	}
	if len(sellers) != 1 || sellers[0].Name != "a" {
		t.Fatalf("sellers = %v", sellers)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open("redis", ""); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("expected ErrUnknownBackend, got %v", err)
	}
}

func TestMergeSellers(t *testing.T) {
	existing := []models.Seller{{Name: "alpha"}, {Name: "Beta"}}
	got := MergeSellers(existing, "beta", "alpha", " gamma ", "", "gamma")

	want := []string{"alpha", "Beta", "beta", "gamma"}
	if len(got) != len(want) {
		t.Fatalf("merged = %v, want %v", got, want)
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("merged[%d] = %q, want %q", i, got[i].Name, name)
		}
	}
}

func TestStoredSellersSavesMergedList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Save(ctx, SellersKey, []models.Seller{{Name: "alpha"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	source := StoredSellers{Store: s, Extra: []string{"alpha", "beta"}}
	sellers, err := source.Sellers(ctx)
	if err != nil {
		t.Fatalf("sellers: %v", err)
	}
	if len(sellers) != 2 || sellers[1].Name != "beta" {
		t.Fatalf("sellers = %v", sellers)
	}

	var persisted []models.Seller
	if _, err := s.Load(ctx, SellersKey, &persisted); err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(persisted) != 2 {
		t.Fatalf("persisted = %v, want 2 sellers", persisted)
	}
}

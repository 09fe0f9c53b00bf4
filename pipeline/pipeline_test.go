package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/config"
	"github.com/aluiziolira/go-scrape-discogs/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.EnrichedListing
	closed      bool
	validateErr error
	writeErr    error
}

func (mw *mockWriter) Write(listings []*models.EnrichedListing) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.EnrichedListing, len(listings))
	copy(copyBatch, listings)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write(listings []*models.EnrichedListing) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

// recommended builds a listing that passes the default rule.
func recommended(id int64) *models.EnrichedListing {
	lowest := 20.0
	return &models.EnrichedListing{
		ListingID: id,
		ReleaseID: id + 1000,
		Title:     "Selected Ambient Works",
		Artist:    "Aphex Twin",
		Link:      "https://www.discogs.com/sell/item/1",
		Price:     models.Price{Amount: 22, Currency: "USD", Normalized: true},
		CatalogInfo: models.CatalogInfo{
			Label:        "Warp Records",
			Genres:       []string{"Electronic"},
			Format:       "Vinyl, LP",
			ForSaleCount: 3,
			LowestPrice:  &lowest,
			HaveCount:    10,
			WantCount:    40,
		},
	}
}

func newTestPipeline(t *testing.T, ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(ctx, writer, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func TestNewPipelineFallsBackToDefaultSizes(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DedupeMaxSize = -1
	cfg.BatchSize = 0
	cfg.PipelineBufferSize = 0

	p, err := NewPipeline(context.Background(), &mockWriter{}, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if p.batchSize != 64 || cap(p.queue) != 512 {
		t.Fatalf("batch size = %d, queue = %d", p.batchSize, cap(p.queue))
	}

	p.Start(1)
	if err := p.Process(recommended(1), recommended(1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := p.GetMetrics()["recommended_listings"].(int64); got != 1 {
		t.Fatalf("recommended = %d, want 1 after dedupe", got)
	}
}

func TestPipelineValidationDedupAndFilter(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(1)

	valid := recommended(1)
	invalid := recommended(2)
	invalid.Price.Currency = ""
	duplicate := recommended(1)
	common := recommended(3)
	common.HaveCount = 500

	if err := p.Process(valid, invalid, duplicate, common); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written listings = %d, want 1", got)
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] != 1 {
		t.Fatalf("expected invalid_record validation error, got %v", validation)
	}
	if validation["duplicate_listing"] != 1 {
		t.Fatalf("expected duplicate_listing validation error, got %v", validation)
	}
	if metrics["filtered_listings"].(int64) != 1 {
		t.Fatalf("filtered = %v, want 1", metrics["filtered_listings"])
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(recommended(int64(i + 1))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process(recommended(int64(i + 200))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written listings = %d, want 100", got)
	}
}

func TestPipelineHandleRecordTagsSeller(t *testing.T) {
	writer := &mockWriter{}
	p := newTestPipeline(t, context.Background(), writer, config.DefaultConfig())
	p.Start(1)

	record := &models.SellerRecord{
		Name:     "crate",
		Releases: []models.EnrichedListing{*recommended(1), *recommended(2)},
	}
	if err := p.HandleRecord(context.Background(), record); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if writer.totalWritten() != 2 {
		t.Fatalf("written = %d, want 2", writer.totalWritten())
	}
	for _, l := range writer.batches[0] {
		if l.Seller != "crate" {
			t.Fatalf("seller = %q, want crate", l.Seller)
		}
	}
	if record.Releases[0].Seller != "" {
		t.Fatalf("record mutated")
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p := newTestPipeline(t, context.Background(), &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(recommended(1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineContextCancelStopsIntake(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newTestPipeline(t, ctx, &mockWriter{}, config.DefaultConfig())
	p.Start(1)
	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		if !p.isAccepting() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline still open after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Process(recommended(1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestPipelineWriteErrorSurfaces(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	boom := errors.New("disk full")
	p := newTestPipeline(t, context.Background(), &mockWriter{writeErr: boom}, cfg)
	p.Start(1)

	_ = p.Process(recommended(1))
	if err := p.Close(); !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := newTestPipeline(t, context.Background(), writer, cfg)
	p.Start(1)

	if err := p.Process(recommended(1)); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

func TestRuleFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RecommendGenres = []string{"Jazz"}
	cfg.RecommendMaxForSale = 3
	cfg.RecommendMaxPremium = 0.5

	rule := RuleFromConfig(cfg)
	if len(rule.Genres) != 1 || rule.Genres[0] != "Jazz" || rule.MaxForSale != 3 || rule.MaxPremium != 0.5 {
		t.Fatalf("rule = %+v", rule)
	}
	if rule.Format != "vinyl" {
		t.Fatalf("format = %q, want vinyl", rule.Format)
	}
}

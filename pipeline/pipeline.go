package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/config"
	"github.com/aluiziolira/go-scrape-discogs/models"
	"github.com/aluiziolira/go-scrape-discogs/parser"
	"github.com/aluiziolira/go-scrape-discogs/recommend"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers.
var drainTimeout = 30 * time.Second

// OutputWriter receives batches of recommended listings.
type OutputWriter interface {
	Write(listings []*models.EnrichedListing) error
	Close() error
	Validate() error
}

// Pipeline validates, de-duplicates and filters enriched listings, then
// writes the recommended ones in batches from a pool of workers.
type Pipeline struct {
	writer    OutputWriter
	rule      recommend.Rule
	queue     chan *models.EnrichedListing
	batchSize int
	seen      *lru.Cache[int64, struct{}]
	stats     stats

	workers sync.WaitGroup

	mu          sync.Mutex // guards the three fields below
	accepting   bool
	queueClosed bool
	firstErr    error

	stopped  chan struct{}
	stopOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg. Cancelling ctx stops
// accepting new listings; queued ones still drain on Close.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) (*Pipeline, error) {
	seen, err := lru.New[int64, struct{}](positiveOr(cfg.DedupeMaxSize, 100000))
	if err != nil {
		return nil, fmt.Errorf("create dedupe cache: %w", err)
	}

	p := &Pipeline{
		writer:    writer,
		rule:      RuleFromConfig(cfg),
		queue:     make(chan *models.EnrichedListing, positiveOr(cfg.PipelineBufferSize, 512)),
		batchSize: positiveOr(cfg.BatchSize, 64),
		seen:      seen,
		stats:     stats{validation: make(map[string]int)},
		accepting: true,
		stopped:   make(chan struct{}),
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				p.stopAccepting()
			case <-p.stopped:
			}
		}()
	}
	return p, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// RuleFromConfig builds the recommendation rule from configured thresholds.
func RuleFromConfig(cfg *config.Config) recommend.Rule {
	rule := recommend.DefaultRule()
	if len(cfg.RecommendGenres) > 0 {
		rule.Genres = cfg.RecommendGenres
	}
	if cfg.RecommendMaxForSale > 0 {
		rule.MaxForSale = cfg.RecommendMaxForSale
	}
	if cfg.RecommendMaxPremium > 0 {
		rule.MaxPremium = cfg.RecommendMaxPremium
	}
	return rule
}

// Start launches n workers. It is a no-op once the pipeline has stopped.
func (p *Pipeline) Start(n int) {
	if !p.isAccepting() {
		return
	}
	for i := 0; i < positiveOr(n, 1); i++ {
		p.workers.Add(1)
		go p.run()
	}
}

// Process enqueues listings; nil entries are ignored.
func (p *Pipeline) Process(listings ...*models.EnrichedListing) error {
	for _, listing := range listings {
		if listing == nil {
			continue
		}
		if err := p.enqueue(listing); err != nil {
			return err
		}
	}
	return nil
}

// HandleRecord enqueues every release of a seller record, tagged with the
// seller name. The record itself is left untouched.
func (p *Pipeline) HandleRecord(_ context.Context, record *models.SellerRecord) error {
	if record == nil {
		return nil
	}
	listings := make([]*models.EnrichedListing, 0, len(record.Releases))
	for i := range record.Releases {
		l := record.Releases[i]
		if l.Seller == "" {
			l.Seller = record.Name
		}
		listings = append(listings, &l)
	}
	return p.Process(listings...)
}

// Close stops intake and waits up to drainTimeout for queued listings to be
// written. It returns the first write error, if any.
func (p *Pipeline) Close() error {
	p.shutdown(nil)

	drained := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return p.Err()
	case <-time.After(drainTimeout):
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.stats.snapshot()
}

// StartMetricsReporting logs counters every interval until the pipeline stops.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				slog.Info("pipeline progress",
					slog.Int64("recommended", p.stats.recommended.Load()),
					slog.Int64("filtered", p.stats.filtered.Load()),
					slog.Int("rejected", p.stats.rejected()),
				)
			case <-p.stopped:
				return
			}
		}
	}()
}

func (p *Pipeline) run() {
	defer p.workers.Done()

	batch := make([]*models.EnrichedListing, 0, p.batchSize)
	write := func() bool {
		if len(batch) == 0 {
			return true
		}
		if err := p.writer.Write(batch); err != nil {
			p.shutdown(fmt.Errorf("write batch: %w", err))
			return false
		}
		batch = batch[:0]
		return true
	}

	for listing := range p.queue {
		if !p.keep(listing) {
			continue
		}
		batch = append(batch, listing)
		if len(batch) >= p.batchSize && !write() {
			return
		}
	}
	write()
}

// keep applies validation, de-duplication by listing id and the rule.
func (p *Pipeline) keep(listing *models.EnrichedListing) bool {
	if err := parser.ValidateListing(listing); err != nil {
		p.stats.reject("invalid_record")
		return false
	}
	if dup, _ := p.seen.ContainsOrAdd(listing.ListingID, struct{}{}); dup {
		p.stats.reject("duplicate_listing")
		return false
	}
	if !p.rule.Match(*listing) {
		p.stats.filtered.Add(1)
		return false
	}
	p.stats.recommended.Add(1)
	return true
}

func (p *Pipeline) enqueue(listing *models.EnrichedListing) (err error) {
	if !p.isAccepting() {
		if err := p.Err(); err != nil {
			return err
		}
		return ErrPipelineClosed
	}
	// The queue may be closed between the check and the send.
	defer func() {
		if recover() != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.stopped:
		return ErrPipelineClosed
	case p.queue <- listing:
		return nil
	}
}

func (p *Pipeline) isAccepting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accepting
}

// stopAccepting rejects new listings without closing the queue.
func (p *Pipeline) stopAccepting() {
	p.mu.Lock()
	p.accepting = false
	p.mu.Unlock()
	p.stopOnce.Do(func() { close(p.stopped) })
}

// shutdown records cause (if first) and closes the queue exactly once.
func (p *Pipeline) shutdown(cause error) {
	p.mu.Lock()
	if cause != nil && p.firstErr == nil {
		p.firstErr = cause
	}
	p.accepting = false
	closeQueue := !p.queueClosed
	p.queueClosed = true
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stopped) })
	if closeQueue {
		close(p.queue)
	}
}

type stats struct {
	recommended atomic.Int64
	filtered    atomic.Int64

	mu         sync.Mutex
	validation map[string]int
}

func (s *stats) reject(kind string) {
	s.mu.Lock()
	s.validation[kind]++
	s.mu.Unlock()
}

func (s *stats) rejected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.validation {
		total += n
	}
	return total
}

func (s *stats) snapshot() map[string]interface{} {
	s.mu.Lock()
	validation := make(map[string]int, len(s.validation))
	for k, v := range s.validation {
		validation[k] = v
	}
	s.mu.Unlock()

	return map[string]interface{}{
		"recommended_listings": s.recommended.Load(),
		"filtered_listings":    s.filtered.Load(),
		"validation_errors":    validation,
	}
}

package pipeline

import (
	"sync"

	"github.com/aluiziolira/go-scrape-discogs/models"
)

// Feed keeps the most recent recommendations in memory for the status
// endpoint. Older entries are overwritten once size is reached.
type Feed struct {
	mu    sync.RWMutex
	items []models.EnrichedListing
	next  int
	full  bool
}

// NewFeed keeps the last size listings, 20 when size is not positive.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 20
	}
	return &Feed{items: make([]models.EnrichedListing, size)}
}

func (f *Feed) Write(listings []*models.EnrichedListing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range listings {
		if l == nil {
			continue
		}
		f.items[f.next] = *l
		f.next = (f.next + 1) % len(f.items)
		if f.next == 0 {
			f.full = true
		}
	}
	return nil
}

// Recent returns the buffered recommendations, oldest first.
func (f *Feed) Recent() []models.EnrichedListing {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.full {
		out := make([]models.EnrichedListing, f.next)
		copy(out, f.items[:f.next])
		return out
	}
	out := make([]models.EnrichedListing, 0, len(f.items))
	out = append(out, f.items[f.next:]...)
	out = append(out, f.items[:f.next]...)
	return out
}

func (f *Feed) Close() error    { return nil }
func (f *Feed) Validate() error { return nil }

// Package stats aggregates usage counters over the persisted snapshot.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gordonmeng2021/Email-AI/internal/state"
)

// minutesSavedPerDraft is the fixed time-saved estimate credited for
// each generated reply draft.
const minutesSavedPerDraft = 5

// Persistence is the slice of the state store the aggregator needs.
type Persistence interface {
	LoadStats(ctx context.Context) (state.StatsRecord, error)
	SaveStats(ctx context.Context, rec state.StatsRecord) error
}

// Aggregator applies monotonic increments to the persisted statistics
// snapshot. Every increment re-reads the latest persisted values before
// writing; the mutex serializes concurrent callers so read-modify-write
// cannot lose updates.
type Aggregator struct {
	mu    sync.Mutex
	store Persistence
	now   func() time.Time
}

// New creates an aggregator over the given persistence.
func New(store Persistence) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// Record adds the outcome of completed message processing: processed
// messages and drafts generated for a subset of them. Counters only
// ever increase.
func (a *Aggregator) Record(ctx context.Context, processed, drafts int) error {
	if processed <= 0 && drafts <= 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	rec, err := a.store.LoadStats(ctx)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	rec.MessagesProcessed += int64(processed)
	rec.DraftsGenerated += int64(drafts)
	rec.HoursSaved += float64(drafts) * minutesSavedPerDraft / 60
	rec.LastUpdated = a.now()

	if err := a.store.SaveStats(ctx, rec); err != nil {
		return fmt.Errorf("save stats: %w", err)
	}
	return nil
}

// Snapshot returns the latest persisted statistics.
func (a *Aggregator) Snapshot(ctx context.Context) (state.StatsRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.LoadStats(ctx)
}

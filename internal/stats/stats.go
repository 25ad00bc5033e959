// Package stats derives reporting figures from the enrollment store.
package stats

import (
	"fmt"

	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/store"
)

// Aggregator computes reporting stats on demand. Figures are derived from
// enrollment rows at read time, never from the cached cadence counters.
type Aggregator struct {
	store store.Store
}

// NewAggregator creates a stats aggregator.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// Overview returns the cross-cadence stats, with reply rate computed as
// replied over total enrolled (zero when nothing is enrolled).
func (a *Aggregator) Overview() (*models.OverviewStats, error) {
	stats, err := a.store.OverviewStats()
	if err != nil {
		return nil, fmt.Errorf("overview stats query failed: %w", err)
	}
	if stats.TotalEnrolled > 0 {
		stats.ReplyRate = float64(stats.TotalReplied) / float64(stats.TotalEnrolled)
	}
	return stats, nil
}

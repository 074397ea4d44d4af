package cache

import (
	"context"

	"github.com/finrec/backend/internal/domain/reconciliation"
	"github.com/google/uuid"
)

// LatestSummary is the cached payload for the most recent completed run
type LatestSummary struct {
	RunID   uuid.UUID                 `json:"run_id"`
	Summary reconciliation.RunSummary `json:"summary"`
}

// SummaryCache holds the latest completed run summary so dashboard polls
// do not hit the database. A miss is (nil, nil); callers fall back to the
// run repository.
type SummaryCache interface {
	// SetLatest stores the summary of the most recent completed run
	SetLatest(ctx context.Context, latest *LatestSummary) error

	// GetLatest returns the cached summary or nil on a miss
	GetLatest(ctx context.Context) (*LatestSummary, error)

	// Invalidate drops the cached summary
	Invalidate(ctx context.Context) error

	// Close releases any underlying resources
	Close() error
}

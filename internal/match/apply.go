package match

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ResultStore is the slice of the persistence layer the applier needs:
// which sources already have a match, and insert-if-absent writes.
type ResultStore interface {
	MatchedSourceIDs(ctx context.Context) (map[string]bool, error)
	InsertMatches(ctx context.Context, rows []Result) (int64, error)
}

// ApplyOptions configures the write-back step.
type ApplyOptions struct {
	// BatchSize is the checkpoint interval; a mid-run failure loses at most
	// one batch of progress. Default 500.
	BatchSize int

	// WritesPerSec paces batch writes against the shared store. Zero means
	// unpaced.
	WritesPerSec float64
}

// Applier persists accepted matches exactly once per source entity. It
// writes insert-if-absent, so a re-run against unchanged inputs is a no-op
// and a source matched in a prior run is never overwritten.
type Applier struct {
	store   ResultStore
	batch   int
	limiter *rate.Limiter
}

// NewApplier creates an Applier over a result store.
func NewApplier(rs ResultStore, opts ApplyOptions) *Applier {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 500
	}
	var limiter *rate.Limiter
	if opts.WritesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.WritesPerSec), 1)
	}
	return &Applier{store: rs, batch: batch, limiter: limiter}
}

// Apply writes the results in commit mode, or does nothing in preview mode.
// Returns how many rows were written and how many were skipped because the
// source entity already had a match. Cancellation between batches leaves
// the store consistent at the last completed checkpoint.
func (a *Applier) Apply(ctx context.Context, results []Result, commit bool) (written, conflicts int64, err error) {
	if !commit || len(results) == 0 {
		return 0, 0, nil
	}

	log := zap.L().With(zap.String("component", "match.apply"))

	existing, err := a.store.MatchedSourceIDs(ctx)
	if err != nil {
		return 0, 0, eris.Wrap(err, "apply: load existing matches")
	}

	// The per-tier exclusion logic should make prior-run conflicts rare,
	// but guard anyway: log and skip, never overwrite.
	pending := results[:0:0]
	for _, r := range results {
		if existing[r.SourceID] {
			log.Debug("source already matched, skipping",
				zap.String("source_id", r.SourceID),
				zap.String("reference_id", r.ReferenceID))
			conflicts++
			continue
		}
		pending = append(pending, r)
	}

	for start := 0; start < len(pending); start += a.batch {
		if err := ctx.Err(); err != nil {
			return written, conflicts, eris.Wrap(err, "apply: cancelled between batches")
		}
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return written, conflicts, eris.Wrap(err, "apply: rate limit wait")
			}
		}

		end := min(start+a.batch, len(pending))
		n, err := a.store.InsertMatches(ctx, pending[start:end])
		if err != nil {
			return written, conflicts, eris.Wrapf(err, "apply: insert batch at %d", start)
		}
		written += n
		// Insert-if-absent swallows rows that appeared since the existence
		// check; count them as conflicts too.
		conflicts += int64(end-start) - n

		log.Debug("batch checkpoint", zap.Int("through", end), zap.Int64("written", written))
	}

	return written, conflicts, nil
}

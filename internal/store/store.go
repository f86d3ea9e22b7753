// Package store provides persistence for the entity-resolution engine: the
// source and reference snapshots it reads, the match table it appends to,
// and the run log. Two drivers exist: Postgres for shared deployments and
// SQLite for laptop runs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/entitylink/internal/match"
)

// Filter restricts dataset loads to a geographic scope and/or record cap.
type Filter struct {
	States []string `json:"states,omitempty"`
	Limit  int      `json:"limit,omitempty"`
}

// Run is one row of the match_runs log.
type Run struct {
	ID          string     `json:"id"`
	Scope       string     `json:"scope,omitempty"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Sources     int        `json:"sources"`
	Matched     int        `json:"matched"`
	Unmatched   int        `json:"unmatched"`
	Error       string     `json:"error,omitempty"`
}

// Run statuses.
const (
	RunRunning  = "running"
	RunComplete = "complete"
	RunFailed   = "failed"
)

// Store is the persistence boundary of the engine. The source and reference
// tables are owned by upstream intake and read-only here; the match table
// is append-only (insert-if-absent, never update-in-place).
type Store interface {
	// Snapshots
	SourceEntities(ctx context.Context, f Filter) ([]match.SourceEntity, error)
	ReferenceEntities(ctx context.Context, f Filter) ([]match.ReferenceEntity, error)
	DomainAuthority(ctx context.Context) (map[string]string, error)

	// Match table
	MatchedSourceIDs(ctx context.Context) (map[string]bool, error)
	InsertMatches(ctx context.Context, rows []match.Result) (int64, error)
	TierCounts(ctx context.Context) (map[int]int64, error)

	// Run log
	StartRun(ctx context.Context, scope string) (string, error)
	CompleteRun(ctx context.Context, runID string, s *match.Summary) error
	FailRun(ctx context.Context, runID string, runErr error) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// New opens a Store for the configured driver.
func New(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "", "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q (valid: postgres, sqlite)", driver)
	}
}

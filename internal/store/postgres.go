package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/entitylink/internal/db"
	"github.com/sells-group/entitylink/internal/match"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; Close becomes a no-op on the
// pool itself. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS source_entities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	domain      TEXT,
	state       TEXT,
	city        TEXT,
	postal_code TEXT
);

CREATE TABLE IF NOT EXISTS reference_entities (
	id          TEXT NOT NULL,
	name        TEXT NOT NULL,
	alias_name  TEXT,
	state       TEXT,
	city        TEXT,
	postal_code TEXT
);

CREATE TABLE IF NOT EXISTS domain_authority (
	domain       TEXT PRIMARY KEY,
	reference_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS match_results (
	source_id    TEXT PRIMARY KEY,
	reference_id TEXT NOT NULL,
	tier         INT NOT NULL,
	similarity   DOUBLE PRECISION NOT NULL,
	method       TEXT NOT NULL,
	matched_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS match_runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	scope        TEXT,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	sources      INT NOT NULL DEFAULT 0,
	matched      INT NOT NULL DEFAULT 0,
	unmatched    INT NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_reference_entities_id ON reference_entities(id);
CREATE INDEX IF NOT EXISTS idx_reference_entities_state ON reference_entities(state);
CREATE INDEX IF NOT EXISTS idx_source_entities_state ON source_entities(state);
CREATE INDEX IF NOT EXISTS idx_match_results_reference_id ON match_results(reference_id);
CREATE INDEX IF NOT EXISTS idx_match_runs_started_at ON match_runs(started_at DESC);
`

// Migrate applies the store DDL. All statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// Pool exposes the underlying pool for subsystems needing direct access.
func (s *PostgresStore) Pool() db.Pool { return s.pool }

func (s *PostgresStore) SourceEntities(ctx context.Context, f Filter) ([]match.SourceEntity, error) {
	sql := `SELECT id, name, COALESCE(domain, ''), COALESCE(state, ''), COALESCE(city, ''), COALESCE(postal_code, '')
	        FROM source_entities`
	sql, args := applyFilter(sql, f)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query source entities")
	}
	defer rows.Close()

	var out []match.SourceEntity
	for rows.Next() {
		var e match.SourceEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.Domain, &e.State, &e.City, &e.PostalCode); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source entity")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: source entities rows")
	}
	return out, nil
}

func (s *PostgresStore) ReferenceEntities(ctx context.Context, f Filter) ([]match.ReferenceEntity, error) {
	sql := `SELECT id, name, COALESCE(alias_name, ''), COALESCE(state, ''), COALESCE(city, ''), COALESCE(postal_code, '')
	        FROM reference_entities`
	sql, args := applyFilter(sql, f)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query reference entities")
	}
	defer rows.Close()

	var out []match.ReferenceEntity
	for rows.Next() {
		var e match.ReferenceEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.AliasName, &e.State, &e.City, &e.PostalCode); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reference entity")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: reference entities rows")
	}
	return out, nil
}

// applyFilter appends scope and limit clauses. Postgres uses positional
// args, so the clause order here must stay in sync with the args slice.
func applyFilter(sql string, f Filter) (string, []any) {
	var args []any
	if len(f.States) > 0 {
		args = append(args, f.States)
		sql += " WHERE state = ANY($1)"
	}
	sql += " ORDER BY id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		if len(args) == 1 {
			sql += " LIMIT $1"
		} else {
			sql += " LIMIT $2"
		}
	}
	return sql, args
}

func (s *PostgresStore) DomainAuthority(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT domain, reference_id FROM domain_authority`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query domain authority")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var domain, refID string
		if err := rows.Scan(&domain, &refID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain authority")
		}
		out[domain] = refID
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: domain authority rows")
	}
	return out, nil
}

func (s *PostgresStore) MatchedSourceIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT source_id FROM match_results`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query matched source ids")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan matched source id")
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: matched source ids rows")
	}
	return out, nil
}

var matchColumns = []string{"source_id", "reference_id", "tier", "similarity", "method", "matched_at"}

// InsertMatches appends match rows, skipping any source_id that already has
// one. Returns the number of rows actually inserted.
func (s *PostgresStore) InsertMatches(ctx context.Context, results []match.Result) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(results))
	for i, r := range results {
		rows[i] = []any{r.SourceID, r.ReferenceID, r.Tier, r.Similarity, r.Method, r.MatchedAt}
	}

	n, err := db.BulkInsertIgnore(ctx, s.pool, db.InsertIgnoreConfig{
		Table:        "match_results",
		Columns:      matchColumns,
		ConflictKeys: []string{"source_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert matches")
	}
	return n, nil
}

func (s *PostgresStore) TierCounts(ctx context.Context) (map[int]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT tier, COUNT(*) FROM match_results GROUP BY tier ORDER BY tier`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query tier counts")
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var tier int
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier count")
		}
		out[tier] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: tier counts rows")
	}
	return out, nil
}

func (s *PostgresStore) StartRun(ctx context.Context, scope string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO match_runs (id, scope, status, started_at) VALUES ($1, $2, $3, now())`,
		id, scope, RunRunning,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: start run")
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, sum *match.Summary) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET status = $1, completed_at = now(), sources = $2, matched = $3, unmatched = $4 WHERE id = $5`,
		RunComplete, sum.Sources, sum.Matched, sum.Unmatched, runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: complete run")
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET status = $1, completed_at = now(), error = $2 WHERE id = $3`,
		RunFailed, msg, runID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: fail run")
	}
	return nil
}

func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(scope, ''), status, started_at, completed_at, sources, matched, unmatched, COALESCE(error, '')
		 FROM match_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query recent runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Scope, &r.Status, &r.StartedAt, &r.CompletedAt,
			&r.Sources, &r.Matched, &r.Unmatched, &r.Error); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: recent runs rows")
	}
	return out, nil
}

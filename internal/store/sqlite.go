package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/entitylink/internal/match"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// laptop-scale runs and tests; production deployments use Postgres.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	tier         INTEGER NOT NULL,
	similarity   REAL NOT NULL,
	method       TEXT NOT NULL,
	matched_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS match_runs (
	id           TEXT PRIMARY KEY,
	scope        TEXT,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME,
	sources      INTEGER NOT NULL DEFAULT 0,
	matched      INTEGER NOT NULL DEFAULT 0,
	unmatched    INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_reference_entities_id ON reference_entities(id);
CREATE INDEX IF NOT EXISTS idx_reference_entities_state ON reference_entities(state);
CREATE INDEX IF NOT EXISTS idx_source_entities_state ON source_entities(state);
CREATE INDEX IF NOT EXISTS idx_match_results_reference_id ON match_results(reference_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// filterClause builds WHERE/LIMIT SQL for a Filter using ? placeholders.
func filterClause(f Filter) (string, []any) {
	var (
		clause string
		args   []any
	)
	if len(f.States) > 0 {
		ph := make([]string, len(f.States))
		for i, st := range f.States {
			ph[i] = "?"
			args = append(args, st)
		}
		clause = " WHERE state IN (" + strings.Join(ph, ", ") + ")"
	}
	clause += " ORDER BY id"
	if f.Limit > 0 {
		clause += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return clause, args
}

func (s *SQLiteStore) SourceEntities(ctx context.Context, f Filter) ([]match.SourceEntity, error) {
	clause, args := filterClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(domain, ''), COALESCE(state, ''), COALESCE(city, ''), COALESCE(postal_code, '')
		 FROM source_entities`+clause, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query source entities")
	}
	defer rows.Close()

	var out []match.SourceEntity
	for rows.Next() {
		var e match.SourceEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.Domain, &e.State, &e.City, &e.PostalCode); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source entity")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: source entities rows")
}

func (s *SQLiteStore) ReferenceEntities(ctx context.Context, f Filter) ([]match.ReferenceEntity, error) {
	clause, args := filterClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(alias_name, ''), COALESCE(state, ''), COALESCE(city, ''), COALESCE(postal_code, '')
		 FROM reference_entities`+clause, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query reference entities")
	}
	defer rows.Close()

	var out []match.ReferenceEntity
	for rows.Next() {
		var e match.ReferenceEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.AliasName, &e.State, &e.City, &e.PostalCode); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reference entity")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: reference entities rows")
}

func (s *SQLiteStore) DomainAuthority(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, reference_id FROM domain_authority`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query domain authority")
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var domain, refID string
		if err := rows.Scan(&domain, &refID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain authority")
		}
		out[domain] = refID
	}
	return out, eris.Wrap(rows.Err(), "sqlite: domain authority rows")
}

func (s *SQLiteStore) MatchedSourceIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_id FROM match_results`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query matched source ids")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan matched source id")
		}
		out[id] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: matched source ids rows")
}

// InsertMatches appends match rows inside one transaction using INSERT OR
// IGNORE, so re-running against unchanged inputs writes nothing.
func (s *SQLiteStore) InsertMatches(ctx context.Context, results []match.Result) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO match_results (source_id, reference_id, tier, similarity, method, matched_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	var inserted int64
	for _, r := range results {
		res, err := stmt.ExecContext(ctx, r.SourceID, r.ReferenceID, r.Tier, r.Similarity, r.Method, r.MatchedAt.UTC())
		if err != nil {
			return inserted, eris.Wrapf(err, "sqlite: insert match for %s", r.SourceID)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, eris.Wrap(err, "sqlite: commit insert tx")
	}
	return inserted, nil
}

func (s *SQLiteStore) TierCounts(ctx context.Context) (map[int]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tier, COUNT(*) FROM match_results GROUP BY tier ORDER BY tier`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query tier counts")
	}
	defer rows.Close()

	out := make(map[int]int64)
	for rows.Next() {
		var tier int
		var n int64
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier count")
		}
		out[tier] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: tier counts rows")
}

func (s *SQLiteStore) StartRun(ctx context.Context, scope string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO match_runs (id, scope, status, started_at) VALUES (?, ?, ?, ?)`,
		id, scope, RunRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: start run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, sum *match.Summary) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET status = ?, completed_at = ?, sources = ?, matched = ?, unmatched = ? WHERE id = ?`,
		RunComplete, time.Now().UTC(), sum.Sources, sum.Matched, sum.Unmatched, runID,
	)
	return eris.Wrap(err, "sqlite: complete run")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		RunFailed, time.Now().UTC(), msg, runID,
	)
	return eris.Wrap(err, "sqlite: fail run")
}

func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(scope, ''), status, started_at, completed_at, sources, matched, unmatched, COALESCE(error, '')
		 FROM match_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query recent runs")
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Scope, &r.Status, &r.StartedAt, &r.CompletedAt,
			&r.Sources, &r.Matched, &r.Unmatched, &r.Error); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: recent runs rows")
}

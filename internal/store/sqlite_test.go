package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/entitylink/internal/match"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "entitylink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedEntities(t *testing.T, st *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	_, err := st.db.ExecContext(ctx, `
		INSERT INTO source_entities (id, name, domain, state, city, postal_code) VALUES
			('S1', 'Acme Manufacturing', 'acme.com', 'PA', 'Pittsburgh', '15213'),
			('S2', 'Widget Works', NULL, 'OH', 'Columbus', '43215'),
			('S3', 'Orphan Industries', NULL, 'NY', NULL, NULL)`)
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx, `
		INSERT INTO reference_entities (id, name, alias_name, state, city, postal_code) VALUES
			('R1', 'Acme Manufacturing LLC', NULL, 'PA', 'Pittsburgh', '15213'),
			('R2', 'Widget Works Inc', 'Widgets R Us', 'OH', 'Columbus', '43215')`)
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx,
		`INSERT INTO domain_authority (domain, reference_id) VALUES ('acme.com', 'R1')`)
	require.NoError(t, err)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLite(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_SourceEntities(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	got, err := st.SourceEntities(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// NULL columns come back as empty strings.
	assert.Equal(t, "", got[1].Domain)
	assert.Equal(t, "", got[2].PostalCode)
}

func TestSQLite_SourceEntities_Scope(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	got, err := st.SourceEntities(context.Background(), Filter{States: []string{"PA", "OH"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S1", got[0].ID)
	assert.Equal(t, "S2", got[1].ID)
}

func TestSQLite_SourceEntities_Limit(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	got, err := st.SourceEntities(context.Background(), Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLite_ReferenceEntities(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	got, err := st.ReferenceEntities(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Widgets R Us", got[1].AliasName)
}

func TestSQLite_DomainAuthority(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	got, err := st.DomainAuthority(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"acme.com": "R1"}, got)
}

func sqliteResults() []match.Result {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []match.Result{
		{SourceID: "S1", ReferenceID: "R1", Tier: 2, Similarity: 1.0, Method: "exact_name_state", MatchedAt: at},
		{SourceID: "S2", ReferenceID: "R2", Tier: 4, Similarity: 0.72, Method: "fuzzy_name_zip", MatchedAt: at},
	}
}

func TestSQLite_InsertMatches(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	n, err := st.InsertMatches(context.Background(), sqliteResults())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ids, err := st.MatchedSourceIDs(context.Background())
	require.NoError(t, err)
	assert.True(t, ids["S1"])
	assert.True(t, ids["S2"])
}

func TestSQLite_InsertMatches_RerunIsNoOp(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	_, err := st.InsertMatches(context.Background(), sqliteResults())
	require.NoError(t, err)

	n, err := st.InsertMatches(context.Background(), sqliteResults())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_InsertMatches_NeverOverwrites(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	_, err := st.InsertMatches(context.Background(), sqliteResults())
	require.NoError(t, err)

	// A conflicting row for an already-matched source is ignored.
	conflict := []match.Result{{SourceID: "S1", ReferenceID: "R9", Tier: 6, Similarity: 0.31, Method: "fuzzy_name_zip_loose", MatchedAt: time.Now().UTC()}}
	n, err := st.InsertMatches(context.Background(), conflict)
	require.NoError(t, err)
	assert.Zero(t, n)

	var refID string
	require.NoError(t, st.db.QueryRow(
		`SELECT reference_id FROM match_results WHERE source_id = 'S1'`).Scan(&refID))
	assert.Equal(t, "R1", refID)
}

func TestSQLite_TierCounts(t *testing.T) {
	st := newTestSQLite(t)
	seedEntities(t, st)

	_, err := st.InsertMatches(context.Background(), sqliteResults())
	require.NoError(t, err)

	counts, err := st.TierCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[2])
	assert.Equal(t, int64(1), counts[4])
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	id, err := st.StartRun(ctx, "PA")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sum := &match.Summary{Sources: 10, Matched: 7, Unmatched: 3}
	require.NoError(t, st.CompleteRun(ctx, id, sum))

	runs, err := st.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, RunComplete, runs[0].Status)
	assert.Equal(t, "PA", runs[0].Scope)
	assert.Equal(t, 7, runs[0].Matched)
	assert.NotNil(t, runs[0].CompletedAt)
}

func TestSQLite_FailRun(t *testing.T) {
	st := newTestSQLite(t)
	ctx := context.Background()

	id, err := st.StartRun(ctx, "")
	require.NoError(t, err)
	require.NoError(t, st.FailRun(ctx, id, assert.AnError))

	runs, err := st.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/entitylink/internal/match"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS source_entities").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SourceEntities(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, (.+) FROM source_entities ORDER BY id").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "name", "domain", "state", "city", "postal_code"}).
			AddRow("S1", "Acme Manufacturing", "acme.com", "PA", "Pittsburgh", "15213").
			AddRow("S2", "Widget Works", "", "OH", "", ""))

	got, err := st.SourceEntities(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "S1", got[0].ID)
	assert.Equal(t, "acme.com", got[0].Domain)
	assert.Equal(t, "", got[1].City)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SourceEntities_ScopeAndLimit(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`FROM source_entities WHERE state = ANY\(\$1\) ORDER BY id LIMIT \$2`).
		WithArgs([]string{"PA", "OH"}, 100).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "name", "domain", "state", "city", "postal_code"}))

	_, err := st.SourceEntities(context.Background(), Filter{States: []string{"PA", "OH"}, Limit: 100})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SourceEntities_QueryError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM source_entities").
		WillReturnError(fmt.Errorf("relation does not exist"))

	_, err := st.SourceEntities(context.Background(), Filter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query source entities")
}

func TestPostgres_ReferenceEntities(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("FROM reference_entities ORDER BY id").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "name", "alias_name", "state", "city", "postal_code"}).
			AddRow("R1", "Acme Manufacturing LLC", "Acme Mfg", "PA", "Pittsburgh", "15213"))

	got, err := st.ReferenceEntities(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Acme Mfg", got[0].AliasName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DomainAuthority(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT domain, reference_id FROM domain_authority").
		WillReturnRows(pgxmock.NewRows([]string{"domain", "reference_id"}).
			AddRow("acme.com", "R1").
			AddRow("widgetco.com", "R2"))

	got, err := st.DomainAuthority(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"acme.com": "R1", "widgetco.com": "R2"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MatchedSourceIDs(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT source_id FROM match_results").
		WillReturnRows(pgxmock.NewRows([]string{"source_id"}).
			AddRow("S1").AddRow("S2"))

	got, err := st.MatchedSourceIDs(context.Background())
	require.NoError(t, err)
	assert.True(t, got["S1"])
	assert.True(t, got["S2"])
	assert.False(t, got["S3"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertMatches_Empty(t *testing.T) {
	st, mock := newMockStore(t)

	n, err := st.InsertMatches(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TierCounts(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT tier, COUNT(.+) FROM match_results GROUP BY tier").
		WillReturnRows(pgxmock.NewRows([]string{"tier", "count"}).
			AddRow(2, int64(120)).
			AddRow(4, int64(45)))

	got, err := st.TierCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(120), got[2])
	assert.Equal(t, int64(45), got[4])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StartRun(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO match_runs").
		WithArgs(pgxmock.AnyArg(), "PA,OH", RunRunning).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := st.StartRun(context.Background(), "PA,OH")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteRun(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE match_runs SET status").
		WithArgs(RunComplete, 100, 80, 20, "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.CompleteRun(context.Background(), "run-1",
		&match.Summary{Sources: 100, Matched: 80, Unmatched: 20})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FailRun(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE match_runs SET status").
		WithArgs(RunFailed, "boom", "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.FailRun(context.Background(), "run-1", fmt.Errorf("boom"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecentRuns(t *testing.T) {
	st, mock := newMockStore(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM match_runs ORDER BY started_at DESC LIMIT").
		WithArgs(5).
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "scope", "status", "started_at", "completed_at", "sources", "matched", "unmatched", "error"}).
			AddRow("run-1", "PA", RunComplete, started, &started, 100, 80, 20, ""))

	runs, err := st.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, RunComplete, runs[0].Status)
	assert.Equal(t, 80, runs[0].Matched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(context.Background(), "oracle", "dsn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

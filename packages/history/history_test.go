package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitfetch/packages/http"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_ConnectionStrings(t *testing.T) {
	dir := t.TempDir()

	for _, cs := range []string{
		"sqlite://" + filepath.Join(dir, "a.db"),
		"sqlite:" + filepath.Join(dir, "b.db"),
		filepath.Join(dir, "c.db"),
		":memory:",
	} {
		store, err := Open(cs)
		require.NoError(t, err, cs)
		require.NoError(t, store.Close())
	}

	_, err := Open("postgres://localhost/db")
	assert.Error(t, err)
	_, err = Open("  ")
	assert.Error(t, err)
}

func TestNewEntry(t *testing.T) {
	started := time.Now().Add(-time.Second)

	ok := NewEntry("GET", "http://a.test/x", started, &http.Outcome{
		StatusCode: 200,
		URL:        "http://a.test/y",
		Redirects:  1,
		Received:   42,
		Duration:   150 * time.Millisecond,
	}, nil)
	assert.NotEmpty(t, ok.ID)
	assert.False(t, ok.Failed())
	assert.Equal(t, "http://a.test/y", ok.FinalURL)
	assert.Equal(t, 150*time.Millisecond, ok.Duration)

	failed := NewEntry("GET", "http://a.test/x", started, nil, &http.Error{Kind: http.KindUnexpectedStatus, StatusCode: 503})
	assert.True(t, failed.Failed())
	assert.Equal(t, http.KindUnexpectedStatus, failed.ErrorKind)
	assert.Equal(t, 503, failed.StatusCode)
	assert.GreaterOrEqual(t, failed.Duration, time.Second)
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, u := range []string{"http://a.test/1", "http://a.test/2", "http://a.test/3"} {
		_, err := store.Record(ctx, Entry{
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			Method:     "GET",
			URL:        u,
			StatusCode: 200,
			Received:   10,
			Duration:   20 * time.Millisecond,
		})
		require.NoError(t, err)
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "http://a.test/3", recent[0].URL)
	assert.Equal(t, "http://a.test/2", recent[1].URL)
	assert.Equal(t, 20*time.Millisecond, recent[0].Duration)
	assert.Equal(t, base.Add(2*time.Minute).UnixMilli(), recent[0].StartedAt.UnixMilli())

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_GetByPrefix(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	id, err := store.Record(ctx, Entry{ID: "abc123", StartedAt: time.Now(), Method: "POST", URL: "http://a.test"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", id)
	_, err = store.Record(ctx, Entry{ID: "abd456", StartedAt: time.Now(), Method: "GET", URL: "http://b.test"})
	require.NoError(t, err)

	e, err := store.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "POST", e.Method)

	_, err = store.Get(ctx, "ab")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = store.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	// LIKE wildcards in the prefix are literal.
	_, err = store.Get(ctx, "a_c")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_FailuresAndStats(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	_, err := store.Record(ctx, Entry{StartedAt: time.Now(), Method: "GET", URL: "http://ok.test", StatusCode: 200, Received: 100, Duration: 10 * time.Millisecond})
	require.NoError(t, err)
	_, err = store.Record(ctx, Entry{StartedAt: time.Now(), Method: "GET", URL: "http://bad.test", ErrorKind: http.KindConnectionError, Error: "refused", Duration: 30 * time.Millisecond})
	require.NoError(t, err)

	failures, err := store.Failures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, http.KindConnectionError, failures[0].ErrorKind)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Failed: 1, AvgMs: 20, Received: 100}, st)
}

func TestStore_Prune(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()
	now := time.Now()

	_, err := store.Record(ctx, Entry{StartedAt: now.Add(-48 * time.Hour), Method: "GET", URL: "http://old.test"})
	require.NoError(t, err)
	_, err = store.Record(ctx, Entry{StartedAt: now, Method: "GET", URL: "http://new.test"})
	require.NoError(t, err)

	n, err := store.Prune(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "http://new.test", left[0].URL)
}

func TestStore_Query(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()

	_, err := store.Record(ctx, Entry{StartedAt: time.Now(), Method: "GET", URL: "http://a.test", StatusCode: 200})
	require.NoError(t, err)

	result, err := store.Query("SELECT method, status FROM exchanges")
	require.NoError(t, err)
	assert.Equal(t, []string{"method", "status"}, result.Columns)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "GET", result.Rows[0]["method"])
	assert.Equal(t, int64(200), result.Rows[0]["status"])

	_, err = store.Query("DELETE FROM exchanges")
	assert.Error(t, err)
}

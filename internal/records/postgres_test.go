package records

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seekerlab/deepresearch/internal/search"
)

func newMockStore(t *testing.T, quota int) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres"), quota, zap.NewNop()), mock
}

func TestGet(t *testing.T) {
	store, mock := newMockStore(t, 0)
	id := uuid.New()
	userID := uuid.New()
	questions, _ := json.Marshal(Questions{{Question: "Which region?", Answer: "EU"}})

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "topic", "questions", "status", "title", "report",
		"cover_url", "sources", "fail_reason", "created_at", "started_at", "completed_at",
	}).AddRow(id.String(), userID.String(), "battery recycling", questions, "pending", "", "", "", []byte("[]"), "", time.Now(), nil, nil)
	mock.ExpectQuery("SELECT id, user_id, topic").WithArgs(id).WillReturnRows(rows)

	r, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "battery recycling", r.Topic)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, "battery recycling\nWhich region?: EU", r.ResearchTopic())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t, 0)
	id := uuid.New()
	mock.ExpectQuery("SELECT id, user_id, topic").WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkStarted(t *testing.T) {
	store, mock := newMockStore(t, 0)
	id := uuid.New()
	mock.ExpectExec("UPDATE researches").WithArgs(id, StatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkStarted(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkStartedMissingRow(t *testing.T) {
	store, mock := newMockStore(t, 0)
	id := uuid.New()
	mock.ExpectExec("UPDATE researches").WithArgs(id, StatusRunning).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.MarkStarted(context.Background(), id), ErrNotFound)
}

func TestComplete(t *testing.T) {
	store, mock := newMockStore(t, 0)
	id := uuid.New()
	sources := Sources{{Title: "A", Link: "https://example.com/a"}}
	encoded, _ := sources.Value()

	mock.ExpectExec("UPDATE researches").
		WithArgs(id, StatusCompleted, "Title", "# Title\nbody", "https://cdn/cover.png", encoded).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Complete(context.Background(), id, CompleteParams{
		Title:    "Title",
		Report:   "# Title\nbody",
		CoverURL: "https://cdn/cover.png",
		Sources:  sources,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedRejectsNonTerminalStatus(t *testing.T) {
	store, _ := newMockStore(t, 0)
	err := store.MarkFailed(context.Background(), uuid.New(), StatusRunning, "nope")
	require.Error(t, err)
}

func TestMarkCancelled(t *testing.T) {
	store, mock := newMockStore(t, 0)
	id := uuid.New()
	mock.ExpectExec("UPDATE researches").WithArgs(id, StatusCancelled, "run deadline exceeded").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkFailed(context.Background(), id, StatusCancelled, "run deadline exceeded"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow(t *testing.T) {
	store, mock := newMockStore(t, 3)
	userID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	ok, err := store.Allow(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowQuotaReached(t *testing.T) {
	store, mock := newMockStore(t, 3)
	userID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	ok, err := store.Allow(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowDisabledQuota(t *testing.T) {
	store, _ := newMockStore(t, 0)
	ok, err := store.Allow(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllowQueryError(t *testing.T) {
	store, mock := newMockStore(t, 3)
	userID := uuid.New()
	mock.ExpectQuery("SELECT COUNT").WithArgs(userID).
		WillReturnError(errors.New("connection reset"))

	_, err := store.Allow(context.Background(), userID)
	require.Error(t, err)
}

func TestSourcesScanRoundTrip(t *testing.T) {
	in := Sources{{Title: "T", Link: "https://x"}}
	v, err := in.Value()
	require.NoError(t, err)

	var out Sources
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var fromNil Sources
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)
}

func TestSourcesFromResultsDropsContent(t *testing.T) {
	results := []search.Result{
		{Title: "A", Link: "https://example.com/a", Content: "scraped article body", Score: 0.9},
		{Title: "B", Link: "https://example.com/b", Content: "more scraped text"},
	}

	sources := SourcesFromResults(results)
	require.Len(t, sources, 2)
	assert.Equal(t, Sources{
		{Title: "A", Link: "https://example.com/a"},
		{Title: "B", Link: "https://example.com/b"},
	}, sources)

	// The persisted form carries no scraped content.
	encoded, err := sources.Value()
	require.NoError(t, err)
	assert.NotContains(t, string(encoded.([]byte)), "scraped")
}

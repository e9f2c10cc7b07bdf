package ratelimit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_FixedWindow(t *testing.T) {
	m := NewMemoryStore()
	now := time.Date(2026, 1, 1, 10, 0, 5, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()
	key := Key("U1", "POST /api/assets")

	for want := int64(1); want <= 3; want++ {
		got, err := m.Incr(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := m.Incr(ctx, Key("U2", "POST /api/assets"), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)

	now = now.Add(time.Minute)
	got, err := m.Incr(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)

	n, err := m.Prune(ctx, now.Truncate(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPostgresStore_Incr(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 1, 1, 10, 0, 42, 0, time.UTC)
	s := NewPostgresStore(db)
	s.now = func() time.Time { return now }

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO rate_limits`)).
		WithArgs("U1|GET /api/assets", time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"hits"}).AddRow(int64(7)))

	hits, err := s.Incr(context.Background(), "U1|GET /api/assets", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(7), hits)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_IncrError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO rate_limits`).WillReturnError(errors.New("db down"))

	_, err = NewPostgresStore(db).Incr(context.Background(), "k", time.Minute)
	require.Error(t, err)
}

func TestPostgresStore_Prune(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM rate_limits WHERE window_start < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := NewPostgresStore(db).Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}

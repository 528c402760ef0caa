package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "embedqueue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestFormatParseTime_RoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 34, 56, 789000000, time.UTC)
	formatted := FormatTime(now)
	parsed, err := ParseTime(formatted)
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))
}

func TestFormatTime_SortsLexicographically(t *testing.T) {
	earlier := FormatTime(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	later := FormatTime(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Less(t, earlier, later)
}

func TestWithExclusiveTx_CommitsOnSuccess(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithExclusiveTx(ctx, func(tx *ExclusiveTx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO jobs (task, delayed, created) VALUES (?, ?, ?)`,
			"noop", FormatTime(Now()), FormatTime(Now()))
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithExclusiveTx_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WithExclusiveTx(ctx, func(tx *ExclusiveTx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO jobs (task, delayed, created) VALUES (?, ?, ?)`,
			"noop", FormatTime(Now()), FormatTime(Now())); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&count))
	assert.Equal(t, 0, count)
}

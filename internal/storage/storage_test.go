package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type backendCase struct {
	name string
	open func(t *testing.T) Backend
}

var backendCases = []backendCase{
	{name: "sqlite", open: func(t *testing.T) Backend { return newTestSQLiteBackend(t) }},
	{name: "blob-bolt", open: func(t *testing.T) Backend { return newTestBoltBlobBackend(t) }},
	{name: "blob-memory", open: func(t *testing.T) Backend { return newTestMemoryBlobBackend(t, NewMemoryKV()) }},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, backend Backend)) {
	t.Helper()
	for _, tc := range backendCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fn(t, tc.open(t))
		})
	}
}

func newTestSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "herd.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestBoltBlobBackend(t *testing.T) *BlobBackend {
	t.Helper()
	kv, err := OpenBoltKV(filepath.Join(t.TempDir(), "herd.bolt"))
	require.NoError(t, err)
	b, err := NewBlobBackend(kv)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestMemoryBlobBackend(t *testing.T, kv KV, opts ...BlobOption) *BlobBackend {
	t.Helper()
	b, err := NewBlobBackend(kv, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func newTestRepo(t *testing.T, backend Backend, opts ...RepositoryOption) *AnimalRepository {
	t.Helper()
	repo, err := NewAnimalRepository(backend, opts...)
	require.NoError(t, err)
	return repo
}

func openRawTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "raw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// stepClock advances by step on every call so each write gets a distinct
// updatedAt.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func calf(tag string) Animal {
	return Animal{Tag: tag, Type: AnimalTypeCalf, Sex: SexFemale}
}

func floatRef(v float64) *float64 {
	return &v
}

func dateRef(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func tags(items []Animal) []string {
	out := make([]string, 0, len(items))
	for _, a := range items {
		out = append(out, a.Tag)
	}
	return out
}

var bg = context.Background()
